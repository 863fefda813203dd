package wasm

import (
	"context"
	"fmt"
)

// fakeModule is an in-memory Module implementation used to exercise the
// loader, contracts and bindings without a real wasm runtime.
type fakeModule struct {
	memName string
	mem     *fakeMemory
	fns     map[string]func(ctx context.Context, params []uint64) ([]uint64, error)
	closed  bool
}

func (m *fakeModule) Function(name string) Function {
	fn, ok := m.fns[name]
	if !ok {
		return nil
	}
	return fakeFunction(fn)
}

func (m *fakeModule) Memory(name string) Memory {
	if m.mem == nil || name != m.memName {
		return nil
	}
	return m.mem
}

func (m *fakeModule) Exports() []string {
	names := make([]string, 0, len(m.fns))
	for name := range m.fns {
		names = append(names, name)
	}
	return names
}

func (m *fakeModule) Close(ctx context.Context) error {
	m.closed = true
	return nil
}

type fakeFunction func(ctx context.Context, params []uint64) ([]uint64, error)

func (f fakeFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f(ctx, params)
}

// fakeMemory is a flat byte region with bump allocation driven by the
// module's alloc export.
type fakeMemory struct {
	data []byte
	next uint32
}

func newFakeMemory(size int) *fakeMemory {
	// Offset zero stays unused so a zero pointer is never a valid buffer.
	return &fakeMemory{data: make([]byte, size), next: 16}
}

func (m *fakeMemory) Read(offset, size uint32) ([]byte, bool) {
	if int(offset)+int(size) > len(m.data) {
		return nil, false
	}
	return m.data[offset : offset+size], true
}

func (m *fakeMemory) Write(offset uint32, b []byte) bool {
	if int(offset)+len(b) > len(m.data) {
		return false
	}
	copy(m.data[offset:], b)
	return true
}

func (m *fakeMemory) alloc(size uint32) uint32 {
	ptr := m.next
	m.next += size
	return ptr
}

func pack(ptr, size uint32) uint64 {
	return uint64(ptr)<<32 | uint64(size)
}

// bufferFn describes one buffer-ABI export of a fake module: how many
// leading (ptr, len) buffer arguments it takes, and its behavior over the
// decoded buffers plus any trailing scalar parameters.
type bufferFn struct {
	nargs int
	impl  func(args [][]byte, extra []uint64) ([]byte, error)
}

// newBufferModule builds a fake module speaking the buffer ABI, including
// the alloc export the real bindings rely on.
func newBufferModule(memName string, fns map[string]bufferFn) *fakeModule {
	mem := newFakeMemory(1 << 20)
	mod := &fakeModule{
		memName: memName,
		mem:     mem,
		fns:     make(map[string]func(ctx context.Context, params []uint64) ([]uint64, error)),
	}

	mod.fns["alloc"] = func(_ context.Context, params []uint64) ([]uint64, error) {
		if len(params) != 1 {
			return nil, fmt.Errorf("alloc wants 1 param, got %d", len(params))
		}
		return []uint64{uint64(mem.alloc(uint32(params[0])))}, nil
	}

	for name, fn := range fns {
		fn := fn
		mod.fns[name] = func(_ context.Context, params []uint64) ([]uint64, error) {
			if len(params) < fn.nargs*2 {
				return nil, fmt.Errorf("%d params is too few for %d buffer args", len(params), fn.nargs)
			}
			args := make([][]byte, fn.nargs)
			for i := 0; i < fn.nargs; i++ {
				ptr, size := uint32(params[i*2]), uint32(params[i*2+1])
				buf, ok := mem.Read(ptr, size)
				if !ok {
					return nil, fmt.Errorf("buffer arg %d out of bounds", i)
				}
				args[i] = append([]byte(nil), buf...)
			}
			out, err := fn.impl(args, params[fn.nargs*2:])
			if err != nil {
				return nil, err
			}
			ptr := mem.alloc(uint32(len(out)))
			if !mem.Write(ptr, out) {
				return nil, fmt.Errorf("result write out of bounds")
			}
			return []uint64{pack(ptr, uint32(len(out)))}, nil
		}
	}
	return mod
}
