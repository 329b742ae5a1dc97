package client

import (
	"sync"

	"github.com/trasherdk/emailjs/mime"
)

// job is one pending send: the message and the callback to invoke exactly
// once when it completes or fails.
type job struct {
	msg *mime.Message
	cb  func(*mime.Message, error)

	once sync.Once
}

// finish invokes the job's callback exactly once, regardless of how many
// times it is called (spec.md §7 "invoked exactly once").
func (j *job) finish(msg *mime.Message, err error) {
	j.once.Do(func() {
		if j.cb != nil {
			j.cb(msg, err)
		}
	})
}

// queue is the FIFO of pending send jobs a Client drains from its single
// event-loop goroutine (spec.md §5 "Queue invariant").
type queue struct {
	mu     sync.Mutex
	items  []*job
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

// push enqueues j and wakes the event loop if it is idle.
func (q *queue) push(j *job) {
	q.mu.Lock()
	q.items = append(q.items, j)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// pop removes and returns the head job, or nil if the queue is empty.
func (q *queue) pop() *job {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j
}

// drain removes and returns every pending job, in order, emptying the
// queue — used by Close to fail remaining jobs without silently dropping
// them (spec.md §5 "Never silently drop jobs").
func (q *queue) drain() []*job {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
