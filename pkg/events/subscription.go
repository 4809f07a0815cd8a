package events

import (
	"sync"

	"github.com/google/uuid"
)

const subscriptionBuffer = 64

// Subscription delivers committed events in Seq order, each exactly once.
// Delivery runs on its own goroutine driven by a cursor into the log, so a
// slow subscriber never blocks Update and never misses an event.
type Subscription struct {
	id   string
	ch   chan Event
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Subscribe starts a subscription at Seq from. from == 0 subscribes to
// events committed after the call only.
func (l *Log) Subscribe(from uint64) *Subscription {
	if from == 0 {
		from = l.Len() + 1
	}
	s := &Subscription{
		id:   uuid.NewString(),
		ch:   make(chan Event, subscriptionBuffer),
		done: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.pump(l, from)
	return s
}

func (s *Subscription) ID() string { return s.id }

// C is closed when the subscription ends.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close ends the subscription. Events already buffered in C may still be read.
func (s *Subscription) Close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Subscription) pump(l *Log, next uint64) {
	defer s.wg.Done()
	defer close(s.ch)
	for {
		l.mu.RLock()
		evs, wait := l.since(next, subscriptionBuffer)
		closed := l.closed
		l.mu.RUnlock()

		for _, e := range evs {
			select {
			case s.ch <- e:
				next = e.Seq + 1
			case <-s.done:
				return
			}
		}
		if len(evs) > 0 {
			continue
		}
		if closed {
			return
		}
		select {
		case <-wait:
		case <-s.done:
			return
		}
	}
}
