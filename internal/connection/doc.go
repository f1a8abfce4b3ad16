// Package connection implements the Connection Registry component.
//
// The registry:
//   - Tracks live logical connections in three indices (by id, user, instance)
//   - Enforces per-user and global capacity atomically at registration
//   - Records heartbeats and reports stale connections on demand
//   - Hands out copies only; internal records never leave the lock
//
// The registry performs no I/O and runs no goroutines. Eviction of stale
// connections is the transport's job: StaleConnections is a pure read.
package connection
