// Package worker implements the worker-process side of the RPC protocol: a
// serve loop that decodes typed commands from the orchestrator, dispatches
// each one concurrently, and writes back exactly one correlated response per
// request id. The generation engine behind it fetches its model resources
// through the resilient fetch layer and analyzes text through the language
// wasm module.
package worker
