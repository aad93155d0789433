package terminal

import (
	"io"
	"sync"
	"time"
)

// fragmentQueue is an unbounded FIFO of text fragments with a wake signal.
// Any number of goroutines may push; pops are expected from one consumer.
type fragmentQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{} // signaled (non-blocking) when an item is pushed
}

func newFragmentQueue() *fragmentQueue {
	return &fragmentQueue{notify: make(chan struct{}, 1)}
}

func (q *fragmentQueue) push(s string) {
	q.mu.Lock()
	q.items = append(q.items, s)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *fragmentQueue) tryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	s := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return s, true
}

// drain removes and returns everything queued.
func (q *fragmentQueue) drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *fragmentQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pop blocks until an item is available, done is closed (io.EOF) or the
// timeout elapses (ErrTimeout). A non-positive timeout waits indefinitely.
// Once done is closed pop never returns queued items.
func (q *fragmentQueue) pop(timeout time.Duration, done <-chan struct{}) (string, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	for {
		select {
		case <-done:
			return "", io.EOF
		default:
		}

		if s, ok := q.tryPop(); ok {
			return s, nil
		}

		select {
		case <-q.notify:
		case <-done:
			return "", io.EOF
		case <-expired:
			return "", ErrTimeout
		}
	}
}
