package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/logging/queue"
)

var ErrClosed = errors.New("batch processor is closed")

// DeliverFunc receives one drained batch. It runs on the timer goroutine.
type DeliverFunc func(entries []logging.LogEntry)

type Config struct {
	WaitUntilSend     time.Duration
	MessageQueueLimit int
}

// Processor coalesces bursts of entries into single deliveries. Every Add
// restarts the quiet period; reaching MessageQueueLimit schedules the flush
// with no delay.
type Processor struct {
	config  Config
	deliver DeliverFunc
	clock   clock.WithDelayedExecution
	log     *zap.SugaredLogger

	mu         sync.Mutex
	queue      *queue.Queue
	timer      clock.Timer
	generation uint64
	closed     bool

	inflight sync.WaitGroup
}

type Option func(*Processor)

func WithClock(c clock.WithDelayedExecution) Option {
	return func(p *Processor) { p.clock = c }
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *Processor) { p.log = log }
}

func NewBatchProcessor(config Config, deliver DeliverFunc, opts ...Option) *Processor {
	if config.WaitUntilSend < 0 {
		config.WaitUntilSend = 0
	}
	if config.MessageQueueLimit <= 0 {
		config.MessageQueueLimit = logging.DefaultMessageQueueLimit
	}

	p := &Processor{
		config:  config,
		deliver: deliver,
		clock:   clock.RealClock{},
		log:     zap.NewNop().Sugar(),
		queue:   queue.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddEntry queues the entry and re-arms the flush timer. It never waits for delivery.
func (p *Processor) AddEntry(entry logging.LogEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	p.queue.Enqueue(entry)
	p.rearmLocked()
	return nil
}

// Size is the number of entries waiting for the next flush.
func (p *Processor) Size() int {
	return p.queue.Size()
}

// Pending reports whether a flush is scheduled.
func (p *Processor) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer != nil
}

func (p *Processor) rearmLocked() {
	delay := p.config.WaitUntilSend
	if p.queue.Size() >= p.config.MessageQueueLimit {
		delay = 0
	}

	if p.timer != nil {
		p.timer.Stop()
	}
	p.generation++
	gen := p.generation
	p.timer = p.clock.AfterFunc(delay, func() { p.fire(gen) })
}

// fire runs when a timer expires. A timer that was replaced after it had
// already fired carries a stale generation and does nothing.
func (p *Processor) fire(gen uint64) {
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	entries := p.queue.Drain()
	if len(entries) == 0 {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	defer p.inflight.Done()
	p.log.Debugw("Flushing batch", "entries", len(entries))
	p.deliver(entries)
}

// Flush cancels the pending timer and delivers whatever is queued now, on the
// calling goroutine.
func (p *Processor) Flush() {
	p.mu.Lock()
	entries := p.cancelAndDrainLocked()
	if len(entries) == 0 {
		p.mu.Unlock()
		return
	}
	p.inflight.Add(1)
	p.mu.Unlock()

	defer p.inflight.Done()
	p.deliver(entries)
}

func (p *Processor) cancelAndDrainLocked() []logging.LogEntry {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.generation++
	return p.queue.Drain()
}

// Close rejects further entries, flushes what is left and waits for in-flight
// deliveries until ctx is done.
func (p *Processor) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	entries := p.cancelAndDrainLocked()
	p.mu.Unlock()

	if len(entries) > 0 {
		p.log.Infow("Flushing remaining entries on close", "entries", len(entries))
		p.deliver(entries)
	}

	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warnw("Timed out waiting for in-flight deliveries", "error", ctx.Err())
		return ctx.Err()
	}
}
