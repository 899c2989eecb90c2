package queue

import (
	"sync"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

// Queue holds pending entries in arrival order.
type Queue struct {
	mu      sync.Mutex
	entries []logging.LogEntry
}

func New() *Queue {
	return &Queue{}
}

func (q *Queue) Enqueue(entry logging.LogEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.entries = append(q.entries, entry)
}

// Drain returns every queued entry and leaves the queue empty.
func (q *Queue) Drain() []logging.LogEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}

	drained := q.entries
	q.entries = nil
	return drained
}

func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
