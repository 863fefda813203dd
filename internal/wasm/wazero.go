package wasm

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// FileInitializer returns an Initializer that reads a compiled wasm binary
// from disk and instantiates it in a fresh wazero runtime. The runtime is
// owned by the returned module and released with it.
func FileInitializer(path string) Initializer {
	return func(ctx context.Context) (Module, error) {
		bin, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading module %s: %w", path, err)
		}
		return InstantiateBinary(ctx, bin)
	}
}

// InstantiateBinary instantiates a compiled wasm binary in a fresh wazero
// runtime.
func InstantiateBinary(ctx context.Context, bin []byte) (Module, error) {
	r := wazero.NewRuntime(ctx)
	mod, err := r.Instantiate(ctx, bin)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("instantiating module: %w", err)
	}
	return &wazeroModule{runtime: r, mod: mod}, nil
}

// wazeroModule adapts a wazero api.Module to the Module interface.
type wazeroModule struct {
	runtime wazero.Runtime
	mod     api.Module
}

func (w *wazeroModule) Function(name string) Function {
	fn := w.mod.ExportedFunction(name)
	if fn == nil {
		return nil
	}
	return wazeroFunction{fn: fn}
}

func (w *wazeroModule) Memory(name string) Memory {
	mem := w.mod.ExportedMemory(name)
	if mem == nil {
		return nil
	}
	return wazeroMemory{mem: mem}
}

func (w *wazeroModule) Exports() []string {
	defs := w.mod.ExportedFunctionDefinitions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	return names
}

func (w *wazeroModule) Close(ctx context.Context) error {
	// Closing the runtime closes the module instance with it.
	return w.runtime.Close(ctx)
}

type wazeroFunction struct {
	fn api.Function
}

func (f wazeroFunction) Call(ctx context.Context, params ...uint64) ([]uint64, error) {
	return f.fn.Call(ctx, params...)
}

type wazeroMemory struct {
	mem api.Memory
}

func (m wazeroMemory) Read(offset, size uint32) ([]byte, bool) {
	return m.mem.Read(offset, size)
}

func (m wazeroMemory) Write(offset uint32, data []byte) bool {
	return m.mem.Write(offset, data)
}
