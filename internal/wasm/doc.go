// Package wasm loads sandboxed WebAssembly computation modules and certifies
// them against a capability contract before any caller may use them.
//
// A Loader performs a lazy, single-flight load: the caller-supplied
// Initializer runs at most once no matter how many goroutines race on the
// first Load, and every caller observes the same outcome. A module that comes
// up but is missing any contract entry is rejected with a ValidationError
// enumerating exactly what was missing and what was actually exported;
// partial capability is never accepted.
package wasm
