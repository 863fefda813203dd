package wasm

import (
	"sort"
)

// Contract names the capability surface a candidate module must expose
// before a Handle is released to callers: one memory export plus a set of
// callable functions. Contracts are plain values; validation happens once,
// at load time.
type Contract struct {
	// Name identifies the contract in errors and logs.
	Name string

	// MemoryName is the required memory export, conventionally "memory".
	MemoryName string

	// Functions are the required exported function names.
	Functions []string
}

// PreprocessContract is the capability surface of the text/image
// preprocessing module. The alloc export is the string/buffer ABI entry
// point used by the typed bindings.
var PreprocessContract = Contract{
	Name:       "preprocess",
	MemoryName: "memory",
	Functions: []string{
		"alloc",
		"normalize_text",
		"tokenize_text",
		"transform_image",
		"size_ratio_stats",
	},
}

// LanguageContract is the capability surface of the language analysis
// module used by the generation worker.
var LanguageContract = Contract{
	Name:       "language",
	MemoryName: "memory",
	Functions: []string{
		"alloc",
		"detect_language",
		"text_stats",
		"normalize_text",
	},
}

// validate performs a strict parity check between the contract and the
// module's exported surface. It checks both the presence of the memory
// export and that every named function exists; every miss is collected so
// the resulting error enumerates the full gap, not just the first one.
func validate(mod Module, c Contract) error {
	var missing []string

	if mod.Memory(c.MemoryName) == nil {
		missing = append(missing, "memory:"+c.MemoryName)
	}
	for _, name := range c.Functions {
		if mod.Function(name) == nil {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	available := mod.Exports()
	sort.Strings(available)
	return &ValidationError{
		Contract:  c.Name,
		Missing:   missing,
		Available: available,
	}
}
