package eventbus

import (
	"sync"
	"time"
)

// Event is a lightweight in-memory signal used to decouple components.
//
// Contract:
//   - Publish MUST be non-blocking.
//   - Slow subscribers may drop events (bounded backpressure).
type Event struct {
	Type string
	Time time.Time
	Data any
}

// Event types published by the notification subsystem.
const (
	NotifySent      = "notify.sent"
	NotifyFailed    = "notify.failed"
	NotifyExhausted = "notify.exhausted"
	NotifyCleared   = "notify.cleared"
)

type subscriber struct {
	id uint64
	ch chan Event
}

// Bus is a simple in-memory fanout bus. It owns no background goroutines.
type Bus struct {
	mu   sync.Mutex
	seq  uint64
	subs []subscriber
}

func New() *Bus {
	return &Bus{}
}

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	targets := append([]subscriber(nil), b.subs...)
	b.mu.Unlock()

	for _, s := range targets {
		select {
		case s.ch <- e:
		default:
			// subscriber is slow; drop
		}
	}
}

// Subscribe registers a buffered subscriber channel. The returned function
// unsubscribes; the channel is never closed by the bus, so a drained
// subscriber simply stops receiving after unsubscribing.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.seq++
	id := b.seq
	b.subs = append(b.subs, subscriber{id: id, ch: ch})
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
			b.mu.Unlock()
		})
	}
	return ch, unsub
}
