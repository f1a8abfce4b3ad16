// Package model defines the shared message types used across the realtime core.
//
// Message is the currency between the router (which constructs and resolves
// it), the backpressure handler (which queues it), and the reconnect manager
// (which buffers it for replay). Keeping it in a leaf package is what lets
// those components stay independent of one another.
//
// Conventions:
//   - IDs: uuid strings, generated at construction
//   - Payloads: opaque []byte, never inspected by the core
//   - Timestamps: time.Time, stamped at construction
package model
