package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

func TestQueue_EnqueueDrain(t *testing.T) {
	q := New()

	q.Enqueue(logging.LogEntry{Level: "info", Message: "first"})
	q.Enqueue(logging.LogEntry{Level: "error", Message: "second"})
	assert.Equal(t, 2, q.Size())

	drained := q.Drain()
	assert.Len(t, drained, 2)
	assert.Equal(t, "first", drained[0].Message)
	assert.Equal(t, "second", drained[1].Message)
	assert.Equal(t, 0, q.Size())
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New()

	assert.Empty(t, q.Drain())
	assert.Equal(t, 0, q.Size())
}

func TestQueue_DrainDoesNotShareBacking(t *testing.T) {
	q := New()
	q.Enqueue(logging.LogEntry{Message: "a"})
	drained := q.Drain()

	q.Enqueue(logging.LogEntry{Message: "b"})
	assert.Equal(t, "a", drained[0].Message)
	assert.Equal(t, "b", q.Drain()[0].Message)
}

func TestQueue_ConcurrentEnqueueAndDrain(t *testing.T) {
	q := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)

	collect := func(entries []logging.LogEntry) {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range entries {
			seen[e.Message]++
		}
	}

	for w := 0; w < 5; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				q.Enqueue(logging.LogEntry{Message: fmt.Sprintf("w%d-%d", id, i)})
				if i%10 == 0 {
					collect(q.Drain())
				}
			}
		}(w)
	}
	wg.Wait()
	collect(q.Drain())

	assert.Len(t, seen, 500)
	for msg, n := range seen {
		assert.Equal(t, 1, n, msg)
	}
}
