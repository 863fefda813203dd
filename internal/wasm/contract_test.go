package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullModuleFor builds a fake module exporting everything the contract
// requires, with no-op implementations.
func fullModuleFor(c Contract) *fakeModule {
	fns := make(map[string]func(ctx context.Context, params []uint64) ([]uint64, error))
	for _, name := range c.Functions {
		fns[name] = func(context.Context, []uint64) ([]uint64, error) { return []uint64{0}, nil }
	}
	return &fakeModule{memName: c.MemoryName, mem: newFakeMemory(1 << 10), fns: fns}
}

func TestValidate_FullContractPasses(t *testing.T) {
	t.Parallel()

	for _, contract := range []Contract{PreprocessContract, LanguageContract} {
		require.NoError(t, validate(fullModuleFor(contract), contract), contract.Name)
	}
}

func TestValidate_AnySingleMissingFunctionIsNamed(t *testing.T) {
	t.Parallel()

	contract := PreprocessContract
	for _, missing := range contract.Functions {
		missing := missing
		t.Run(missing, func(t *testing.T) {
			t.Parallel()

			// --- Arrange ---
			mod := fullModuleFor(contract)
			delete(mod.fns, missing)

			// --- Act ---
			err := validate(mod, contract)

			// --- Assert ---
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, []string{missing}, valErr.Missing, "the miss must be named exactly")
			assert.Equal(t, contract.Name, valErr.Contract)
			assert.NotContains(t, valErr.Available, missing)
		})
	}
}

func TestValidate_MissingMemoryAndFunctionsAreAllEnumerated(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	contract := LanguageContract
	mod := fullModuleFor(contract)
	mod.memName = "not_memory"
	delete(mod.fns, "detect_language")
	delete(mod.fns, "text_stats")

	// --- Act ---
	err := validate(mod, contract)

	// --- Assert ---
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.ElementsMatch(t,
		[]string{"memory:memory", "detect_language", "text_stats"},
		valErr.Missing,
		"partial contracts collect every miss, not just the first")
	assert.Contains(t, valErr.Available, "normalize_text",
		"the error lists what the module actually exports")
	assert.Contains(t, err.Error(), "detect_language")
}
