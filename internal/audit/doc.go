// Package audit implements the optional delivery audit sink.
//
// The gateway records every routed message here after dispatch; rows are
// batched in memory and flushed to Postgres on a size or interval trigger.
// The sink is write-only from the gateway's point of view: nothing in the
// delivery path ever reads it back, and losing it costs reporting, not
// correctness.
//
// Rows use append-only semantics (never update, only insert).
package audit
