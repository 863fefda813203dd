// Package rpc provides a call/response abstraction over a one-way,
// asynchronous, multiplexed message channel to an isolated worker process.
//
// Every request carries a caller-generated correlation id; a pending-call
// table maps ids to waiting callers and is the sole source of truth for
// whether a call is still outstanding. Responses resolve callers strictly
// by id, never by arrival order, and responses whose id is unknown or
// already resolved are discarded silently.
package rpc
