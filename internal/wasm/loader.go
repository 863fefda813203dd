package wasm

import (
	"context"
	"sync"

	"github.com/vk/wasmchat/internal/ctxlog"
)

// Loader lazily obtains a module's exported surface exactly once and
// certifies it against a capability contract before releasing a Handle.
//
// The zero value is not usable; construct with NewLoader.
type Loader struct {
	init     Initializer
	contract Contract

	once   sync.Once
	handle *Handle
	err    error
}

// NewLoader returns a Loader for the given initializer and contract. Nothing
// is loaded until the first Load call.
func NewLoader(init Initializer, contract Contract) *Loader {
	return &Loader{init: init, contract: contract}
}

// Load returns the validated module handle, running the initializer on the
// first call. Concurrent first callers block until the in-flight load
// finishes and all observe the same outcome; the initializer never runs
// twice, even after a failure.
func (l *Loader) Load(ctx context.Context) (*Handle, error) {
	l.once.Do(func() {
		logger := ctxlog.FromContext(ctx).With("contract", l.contract.Name)
		logger.Debug("Loading module.")

		mod, err := l.init(ctx)
		if err != nil {
			logger.Error("Module initializer failed.", "error", err)
			l.err = &InitError{Err: err}
			return
		}

		if err := validate(mod, l.contract); err != nil {
			logger.Error("Module failed contract validation.", "error", err)
			// The instance is unusable; release it rather than leak the
			// runtime it carries.
			_ = mod.Close(ctx)
			l.err = err
			return
		}

		logger.Debug("Module validated.", "exports", len(mod.Exports()))
		l.handle = &Handle{mod: mod, mem: mod.Memory(l.contract.MemoryName)}
	})
	return l.handle, l.err
}
