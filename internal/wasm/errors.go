package wasm

import (
	"fmt"
	"strings"
)

// InitError reports that the underlying module could not be obtained at all.
// It is distinct from ValidationError so callers can tell "module could not
// be brought up" apart from "module came up but is unusable".
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("module initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// ValidationError reports that an instantiated module does not satisfy its
// capability contract. It always carries the full list of missing entries
// and the exports that were actually present.
type ValidationError struct {
	Contract  string
	Missing   []string
	Available []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("module does not satisfy contract %q: missing [%s], available exports [%s]",
		e.Contract, strings.Join(e.Missing, ", "), strings.Join(e.Available, ", "))
}
