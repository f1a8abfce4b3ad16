// Package gateway is the websocket transport over the four cores.
//
// The gateway:
//   - Upgrades client sockets, checks capacity before the handshake, and
//     registers each accepted connection
//   - Runs one read pump per socket for control frames (subscribe,
//     unsubscribe, publish, ping) and one write pump that drains the
//     connection's delivery queue on a flush cadence
//   - Turns socket loss into a reconnection session and keeps the dead
//     connection's fan-out flowing into the session buffer until the
//     client returns or the session expires
//   - Replays missed messages through the new connection's queue on resume
//   - Polls every timeout in the system from a single housekeeping sweep
//
// The cores (registry, router, backpressure, reconnect) hold state under
// their own locks and never block on each other; the gateway sequences the
// cross-component flows and accepts the races that leaves, dropping what
// no longer has a receiver.
package gateway
