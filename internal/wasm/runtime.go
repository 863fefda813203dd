package wasm

import "context"

// Module is an instantiated WebAssembly module. It abstracts the runtime
// engine so the loader, contracts and bindings can be exercised against
// in-memory fakes as well as real wazero instances.
type Module interface {
	// Function returns a handle to an exported function, or nil if the
	// module does not export one under that name.
	Function(name string) Function

	// Memory returns the exported memory under the given name, or nil if
	// the module does not export one.
	Memory(name string) Memory

	// Exports lists the names of all exported functions. Used to build
	// diagnosable validation failures.
	Exports() []string

	// Close releases the instance and its runtime resources.
	Close(ctx context.Context) error
}

// Function is an exported function of a Module.
type Function interface {
	// Call executes the function with the given parameters.
	Call(ctx context.Context, params ...uint64) ([]uint64, error)
}

// Memory is the linear memory of a Module instance.
type Memory interface {
	// Read reads size bytes from the memory at offset. The second return
	// is false if the range is out of bounds.
	Read(offset, size uint32) ([]byte, bool)

	// Write writes data to the memory at offset. Returns false if the
	// range is out of bounds.
	Write(offset uint32, data []byte) bool
}

// Initializer produces an instantiated Module. It is invoked at most once
// per Loader regardless of call concurrency.
type Initializer func(ctx context.Context) (Module, error)
