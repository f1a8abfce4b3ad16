package router

import "github.com/ghantakiran/axion-stock-sub012/internal/model"

// messageLog stores routed messages oldest first. With capacity zero it is
// a plain append-only slice; with a positive capacity it is a fixed ring
// that overwrites the oldest entry on overflow and counts the evictions.
type messageLog struct {
	capacity int
	entries  []model.Message
	head     int
	count    int
	evicted  int64
}

func newMessageLog(capacity int) *messageLog {
	l := &messageLog{capacity: capacity}
	if capacity > 0 {
		l.entries = make([]model.Message, capacity)
	}
	return l
}

func (l *messageLog) append(msg model.Message) {
	if l.capacity <= 0 {
		l.entries = append(l.entries, msg)
		l.count++
		return
	}
	tail := (l.head + l.count) % l.capacity
	l.entries[tail] = msg
	if l.count == l.capacity {
		l.head = (l.head + 1) % l.capacity
		l.evicted++
	} else {
		l.count++
	}
}

// each calls fn on every retained entry, oldest first.
func (l *messageLog) each(fn func(model.Message)) {
	if l.capacity <= 0 {
		for _, m := range l.entries {
			fn(m)
		}
		return
	}
	for i := 0; i < l.count; i++ {
		fn(l.entries[(l.head+i)%l.capacity])
	}
}

func (l *messageLog) len() int {
	return l.count
}
