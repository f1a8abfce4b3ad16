// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection counts, rejections, and disconnect reasons
//   - Message routing and delivery rates per channel
//   - Queue depth, drops, and slow-consumer counts
//   - Reconnection session outcomes and replay volume
package metrics
