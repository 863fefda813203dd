package wasm

import (
	"context"
	"fmt"
)

// Handle is a validated module's exported operations plus its linear memory.
// It is created once by a Loader, immutable thereafter, and released only at
// process teardown. All access to the module's memory goes through the
// handle's own operations.
type Handle struct {
	mod Module
	mem Memory
}

// Memory returns the module's contract memory region.
func (h *Handle) Memory() Memory { return h.mem }

// Call invokes a named exported function with raw parameters.
func (h *Handle) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	fn := h.mod.Function(name)
	if fn == nil {
		// Contract functions are checked at load time; hitting this means
		// the caller asked for something outside the contract.
		return nil, fmt.Errorf("module has no exported function %q", name)
	}
	return fn.Call(ctx, params...)
}

// Close releases the underlying module instance.
func (h *Handle) Close(ctx context.Context) error {
	return h.mod.Close(ctx)
}

// The buffer ABI: the module exports alloc(size) -> ptr, callers copy inputs
// into linear memory and pass (ptr, len) pairs, and functions return a
// packed u64 with the result pointer in the high 32 bits and the byte length
// in the low 32 bits.

// writeBuffer copies data into the module's memory via alloc and returns
// its address.
func (h *Handle) writeBuffer(ctx context.Context, data []byte) (uint32, error) {
	res, err := h.Call(ctx, "alloc", uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("alloc(%d): %w", len(data), err)
	}
	if len(res) != 1 {
		return 0, fmt.Errorf("alloc returned %d values, want 1", len(res))
	}
	ptr := uint32(res[0])
	if len(data) > 0 && !h.mem.Write(ptr, data) {
		return 0, fmt.Errorf("write of %d bytes at %#x is out of memory bounds", len(data), ptr)
	}
	return ptr, nil
}

// readPacked reads the buffer described by a packed ptr/len return value.
func (h *Handle) readPacked(packed uint64) ([]byte, error) {
	ptr := uint32(packed >> 32)
	size := uint32(packed)
	if size == 0 {
		return nil, nil
	}
	data, ok := h.mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("read of %d bytes at %#x is out of memory bounds", size, ptr)
	}
	// Copy out: the module owns its linear memory and may reuse it on the
	// next call.
	out := make([]byte, size)
	copy(out, data)
	return out, nil
}

// callBuffers invokes a buffer-ABI function: each arg is copied in and
// passed as a (ptr, len) pair, followed by any extra scalar parameters, and
// the packed result buffer is copied back out.
func (h *Handle) callBuffers(ctx context.Context, name string, args [][]byte, extra ...uint64) ([]byte, error) {
	params := make([]uint64, 0, len(args)*2+len(extra))
	for _, arg := range args {
		ptr, err := h.writeBuffer(ctx, arg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		params = append(params, uint64(ptr), uint64(len(arg)))
	}
	params = append(params, extra...)

	res, err := h.Call(ctx, name, params...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	if len(res) != 1 {
		return nil, fmt.Errorf("%s returned %d values, want 1 packed ptr/len", name, len(res))
	}
	out, err := h.readPacked(res[0])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// callString is callBuffers for string-in/string-out functions.
func (h *Handle) callString(ctx context.Context, name string, args ...string) (string, error) {
	bufs := make([][]byte, len(args))
	for i, a := range args {
		bufs[i] = []byte(a)
	}
	out, err := h.callBuffers(ctx, name, bufs)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
