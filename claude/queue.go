package claude

import (
	"sync"
	"time"
)

// closeDrainTimeout bounds how long a closed queue keeps trying to hand
// queued events to a consumer before it drops them.
const closeDrainTimeout = 5 * time.Second

// eventQueue is an unbounded FIFO in front of the Events channel. push
// never blocks, so a slow consumer cannot stall a run's reader goroutine
// while it holds the run lock.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	done   chan struct{}
	out    chan Event
	drain  time.Duration
}

func newEventQueue() *eventQueue {
	return startEventQueue(closeDrainTimeout)
}

func startEventQueue(drain time.Duration) *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		out:    make(chan Event),
		drain:  drain,
	}
	go q.dispatch()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// close stops accepting events. Queued events are still delivered while a
// consumer reads; whatever is left after the drain timeout is dropped and
// the output channel is closed.
func (q *eventQueue) close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) dispatch() {
	defer close(q.out)

	var deadline <-chan time.Time
	for {
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			<-q.signal
			continue
		}
		ev := q.items[0]
		q.items[0] = Event{}
		q.items = q.items[1:]
		q.mu.Unlock()

		if deadline == nil {
			select {
			case q.out <- ev:
				continue
			case <-q.done:
				timer := time.NewTimer(q.drain)
				defer timer.Stop()
				deadline = timer.C
			}
		}
		select {
		case q.out <- ev:
		case <-deadline:
			q.mu.Lock()
			q.items = nil
			q.mu.Unlock()
			return
		}
	}
}
