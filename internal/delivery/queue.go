// Package delivery holds the bounded outbound queues and the loops that
// drain them with one best-effort POST per element.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	QueueCallback     = "callback"
	QueueNotification = "notification"
)

// Element is one pending POST.
type Element struct {
	ID       ulid.ULID
	URL      string
	Payload  string
	Enqueued time.Time
}

// Recorder receives delivery outcomes.
type Recorder interface {
	Delivery(queue, result string)
	QueueDropped(queue string)
}

// Queue is a bounded FIFO. Producers never block: TryEnqueue drops the
// element when the queue is at capacity.
type Queue struct {
	name     string
	recorder Recorder

	mu       sync.Mutex
	items    []Element
	capacity int
	signal   chan struct{}
}

func NewQueue(name string, capacity int, recorder Recorder) *Queue {
	return &Queue{
		name:     name,
		recorder: recorder,
		capacity: capacity,
		signal:   make(chan struct{}, 1),
	}
}

func (q *Queue) Name() string { return q.name }

// TryEnqueue appends an element unless the queue is full.
func (q *Queue) TryEnqueue(url, payload string) bool {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		if q.recorder != nil {
			q.recorder.QueueDropped(q.name)
		}
		return false
	}
	q.items = append(q.items, Element{
		ID:       ulid.Make(),
		URL:      url,
		Payload:  payload,
		Enqueued: time.Now(),
	})
	q.mu.Unlock()
	q.notify()
	return true
}

// Full reports whether the next TryEnqueue would be dropped.
func (q *Queue) Full() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) >= q.capacity
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// SetCapacity changes the bound. Elements already queued beyond a lowered
// capacity stay queued.
func (q *Queue) SetCapacity(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.capacity = n
}

// Next blocks until an element is available or ctx ends.
func (q *Queue) Next(ctx context.Context) (Element, bool) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = Element{}
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				q.notify()
			}
			return e, true
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return Element{}, false
		case <-q.signal:
		}
	}
}

func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
