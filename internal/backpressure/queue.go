package backpressure

import (
	"math/rand"
	"sort"
	"time"

	"github.com/ghantakiran/axion-stock-sub012/internal/model"
)

// queued is one message waiting in a connection's queue.
type queued struct {
	msg model.Message
	seq uint64 // arrival order within the queue
	at  time.Time
}

// queue is a fixed-capacity FIFO ring over a slice. Unlike a growable
// buffer, hitting capacity drops instead of reallocating; the bound is what
// protects the process from a slow consumer.
type queue struct {
	entries []queued
	head    int
	count   int
	nextSeq uint64
	dropped int64
	slow    bool
}

func newQueue(capacity int) *queue {
	return &queue{entries: make([]queued, capacity)}
}

// push appends msg. It reports false and counts a drop when the ring is full.
func (q *queue) push(msg model.Message, now time.Time) bool {
	if q.count == len(q.entries) {
		q.dropped++
		return false
	}
	q.entries[(q.head+q.count)%len(q.entries)] = queued{msg: msg, seq: q.nextSeq, at: now}
	q.nextSeq++
	q.count++
	return true
}

// pop removes and returns the oldest entry.
func (q *queue) pop() (queued, bool) {
	if q.count == 0 {
		return queued{}, false
	}
	item := q.entries[q.head]
	q.entries[q.head] = queued{}
	q.head = (q.head + 1) % len(q.entries)
	q.count--
	return item, true
}

// oldest returns the entry at the head without removing it.
func (q *queue) oldest() (queued, bool) {
	if q.count == 0 {
		return queued{}, false
	}
	return q.entries[q.head], true
}

// ordered returns the queue contents in arrival order.
func (q *queue) ordered() []queued {
	out := make([]queued, 0, q.count)
	for i := 0; i < q.count; i++ {
		out = append(out, q.entries[(q.head+i)%len(q.entries)])
	}
	return out
}

// replace rebuilds the ring from an arrival-ordered slice.
func (q *queue) replace(items []queued) {
	for i := range q.entries {
		q.entries[i] = queued{}
	}
	copy(q.entries, items)
	q.head = 0
	q.count = len(items)
}

// dropOldest removes the n oldest entries.
func (q *queue) dropOldest(n int) {
	for i := 0; i < n; i++ {
		q.pop()
	}
}

// dropLowestPriority removes the n lowest-priority entries. Among equal
// priorities the older entry goes first; survivors keep arrival order.
func (q *queue) dropLowestPriority(n int) {
	items := q.ordered()
	idx := make([]int, len(items))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return items[idx[a]].msg.Priority < items[idx[b]].msg.Priority
	})
	victims := make(map[int]bool, n)
	for _, i := range idx[:n] {
		victims[i] = true
	}
	q.removeVictims(items, victims)
}

// dropRandom removes n entries sampled uniformly; survivors keep arrival order.
func (q *queue) dropRandom(n int) {
	items := q.ordered()
	victims := make(map[int]bool, n)
	for _, i := range rand.Perm(len(items))[:n] {
		victims[i] = true
	}
	q.removeVictims(items, victims)
}

func (q *queue) removeVictims(items []queued, victims map[int]bool) {
	survivors := items[:0]
	for i, item := range items {
		if !victims[i] {
			survivors = append(survivors, item)
		}
	}
	q.replace(survivors)
}
