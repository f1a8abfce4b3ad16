// Package backpressure implements the Backpressure Handler component.
//
// Every connection gets a bounded FIFO queue, created lazily on first
// enqueue. When a queue fills, new messages are dropped and counted rather
// than buffered without limit; when its depth crosses the configured
// threshold the connection is flagged as a slow consumer until the queue
// drains empty. Explicit drop strategies let the transport shed load from
// a specific queue without tearing the connection down.
package backpressure

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// DropStrategy selects which queued messages an explicit Drop removes.
type DropStrategy string

const (
	// DropOldestFirst removes from the head of the queue.
	DropOldestFirst DropStrategy = "oldest_first"

	// DropLowestPriority removes the lowest-priority entries, oldest first
	// among equals.
	DropLowestPriority DropStrategy = "lowest_priority"

	// DropRandom removes a uniform sample of the queue.
	DropRandom DropStrategy = "random"
)

// ParseDropStrategy converts the string form to a DropStrategy. Unknown
// values are an error, never a silent default.
func ParseDropStrategy(s string) (DropStrategy, error) {
	switch DropStrategy(s) {
	case DropOldestFirst, DropLowestPriority, DropRandom:
		return DropStrategy(s), nil
	default:
		return "", fmt.Errorf("unknown drop strategy %q", s)
	}
}

// QueueStats is a point-in-time view of one connection's queue.
type QueueStats struct {
	ConnectionID string
	Depth        int
	OldestAge    time.Duration // age of the head entry, zero when empty
	Dropped      int64         // overflow and explicit drops combined
	Slow         bool
}

// Config holds Backpressure Handler settings.
type Config struct {
	// BufferSize is the per-connection queue capacity.
	BufferSize int

	// Threshold is the depth at which a connection is flagged slow.
	// Zero or below disables the flag.
	Threshold int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize: 500,
		Threshold:  400,
	}
}

// Handler owns the per-connection queues. All methods are safe for
// concurrent use.
type Handler struct {
	cfg Config

	mu     sync.Mutex
	queues map[string]*queue
}

// NewHandler returns a handler with no queues; they appear on first enqueue.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		cfg:    cfg,
		queues: make(map[string]*queue),
	}
}

// Enqueue appends msg to the connection's queue, creating the queue if this
// is the connection's first message. It reports false when the queue is
// full; the message is dropped and counted, never blocked on.
func (h *Handler) Enqueue(connID string, msg model.Message) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[connID]
	if !ok {
		q = newQueue(h.cfg.BufferSize)
		h.queues[connID] = q
	}
	accepted := q.push(msg, time.Now())
	if h.cfg.Threshold > 0 && q.count >= h.cfg.Threshold {
		q.slow = true
	}
	return accepted
}

// Dequeue pops up to count messages in FIFO order; count <= 0 pops one.
// Draining the queue clears the slow flag. Unknown connections return nil.
func (h *Handler) Dequeue(connID string, count int) []model.Message {
	if count <= 0 {
		count = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[connID]
	if !ok || q.count == 0 {
		return nil
	}
	if count > q.count {
		count = q.count
	}
	out := make([]model.Message, 0, count)
	for i := 0; i < count; i++ {
		item, _ := q.pop()
		out = append(out, item.msg)
	}
	if q.count == 0 {
		q.slow = false
	}
	return out
}

// SlowConsumers returns the ids of every connection whose queue depth is
// currently at or above the threshold, sorted. This is a live scan, not the
// sticky Slow flag: a queue that has partially drained below the threshold
// leaves the scan but keeps its flag until it empties.
func (h *Handler) SlowConsumers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.Threshold <= 0 {
		return nil
	}
	var out []string
	for id, q := range h.queues {
		if q.count >= h.cfg.Threshold {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Drop removes up to count messages from the connection's queue using the
// given strategy and returns how many went. count <= 0 means shed just
// enough to bring the depth back to the threshold. Unknown connections and
// unknown strategies drop nothing.
func (h *Handler) Drop(connID string, strategy DropStrategy, count int) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[connID]
	if !ok || q.count == 0 {
		return 0
	}
	if count <= 0 {
		count = q.count - h.cfg.Threshold
		if count <= 0 {
			return 0
		}
	}
	if count > q.count {
		count = q.count
	}

	switch strategy {
	case DropOldestFirst:
		q.dropOldest(count)
	case DropLowestPriority:
		q.dropLowestPriority(count)
	case DropRandom:
		q.dropRandom(count)
	default:
		return 0
	}

	q.dropped += int64(count)
	if q.count == 0 {
		q.slow = false
	}
	return count
}

// Stats returns the connection's queue statistics. The second return is
// false when the connection has never enqueued or has been released.
func (h *Handler) Stats(connID string) (QueueStats, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	q, ok := h.queues[connID]
	if !ok {
		return QueueStats{}, false
	}
	return snapshotStats(connID, q), true
}

// AllStats returns statistics for every queue, sorted by connection id.
func (h *Handler) AllStats() []QueueStats {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]QueueStats, 0, len(h.queues))
	for id, q := range h.queues {
		out = append(out, snapshotStats(id, q))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ConnectionID < out[b].ConnectionID })
	return out
}

// TotalQueued returns the number of messages waiting across all queues.
func (h *Handler) TotalQueued() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := 0
	for _, q := range h.queues {
		total += q.count
	}
	return total
}

// Release discards the connection's queue and everything in it. Call it
// once a connection is gone for good; a later Enqueue recreates the queue
// from scratch.
func (h *Handler) Release(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.queues, connID)
}

func snapshotStats(connID string, q *queue) QueueStats {
	s := QueueStats{
		ConnectionID: connID,
		Depth:        q.count,
		Dropped:      q.dropped,
		Slow:         q.slow,
	}
	if item, ok := q.oldest(); ok {
		s.OldestAge = time.Since(item.at)
	}
	return s
}
