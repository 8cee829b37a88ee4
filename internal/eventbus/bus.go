// Package eventbus is a small in-memory fanout used to observe scheduler
// lifecycle events (scheduled, fired, canceled, recovered, overdue).
package eventbus

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event is a lightweight in-memory signal.
//
// Publish never blocks; a subscriber whose buffer is full misses events.
type Event struct {
	Type string
	Time time.Time
	Data any
}

type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

// New returns an in-memory fanout bus. It owns no goroutines.
func New() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu    sync.RWMutex
	subs  map[uint64]chan Event
	seq   atomic.Uint64
	drops atomic.Uint64
}

// Drops reports how many deliveries were skipped because a subscriber was
// full. Only meaningful for buses returned by New.
func Drops(b Bus) uint64 {
	if mb, ok := b.(*memBus); ok {
		return mb.drops.Load()
	}
	return 0
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.drops.Add(1)
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so closing under the
			// write lock can't race a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
