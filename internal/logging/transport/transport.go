package transport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/logging/batch"
	"github.com/Chichichkin/LogMailer/internal/logging/format"
	"github.com/Chichichkin/LogMailer/internal/metrics"
)

const Name = "ses"

var (
	ErrMissingRecipients = errors.New("transport requires at least one 'to' address")
	ErrMissingSender     = errors.New("transport requires a mail sender")
	ErrClosed            = batch.ErrClosed
)

var _ logging.Logger = (*Transport)(nil)

// Transport batches log calls and mails each batch as one combined message.
type Transport struct {
	config    logging.Config
	sender    logging.Sender
	formatter *format.Formatter
	processor *batch.Processor
	log       *zap.SugaredLogger
	events    emitter
}

type options struct {
	clock clock.WithDelayedExecution
	log   *zap.SugaredLogger
}

type Option func(*options)

// WithClock replaces the timer source of the flush scheduler.
func WithClock(c clock.WithDelayedExecution) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger used for diagnostics. It must not feed back into
// this transport.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

func New(config logging.Config, sender logging.Sender, opts ...Option) (*Transport, error) {
	if len(config.To) == 0 {
		return nil, ErrMissingRecipients
	}
	if sender == nil {
		return nil, ErrMissingSender
	}

	o := options{clock: clock.RealClock{}, log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}

	config = config.WithDefaults()
	if config.From == "" {
		config.From = defaultFrom()
	}

	formatter, err := format.New(config.Label, config.Subject)
	if err != nil {
		return nil, fmt.Errorf("transport %s: %w", Name, err)
	}

	t := &Transport{
		config:    config,
		sender:    sender,
		formatter: formatter,
		log:       o.log.Named("transport"),
	}
	t.processor = batch.NewBatchProcessor(batch.Config{
		WaitUntilSend:     config.WaitUntilSend,
		MessageQueueLimit: config.MessageQueueLimit,
	}, t.deliver, batch.WithClock(o.clock), batch.WithLogger(t.log))

	t.log.Infow("Mail transport initialized",
		"to", config.To,
		"from", config.From,
		"level", config.Level,
		"silent", config.Silent,
		"waitUntilSend", config.WaitUntilSend,
		"messageQueueLimit", config.MessageQueueLimit)

	return t, nil
}

func defaultFrom() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return "logmailer@" + host
}

func (t *Transport) Name() string { return Name }

// Config returns the effective configuration after defaults were applied.
func (t *Transport) Config() logging.Config { return t.config }

// On registers a listener for one of the Event* names.
func (t *Transport) On(name string, l Listener) {
	t.events.on(name, l)
}

// Log accepts one log call. The callback, if any, runs before Log returns and
// only confirms acceptance; delivery happens later.
func (t *Transport) Log(level, message string, meta any, callback logging.Callback) {
	if callback == nil {
		callback = func(error, bool) {}
	}

	if t.config.Silent {
		callback(nil, true)
		return
	}

	if !LevelEnabled(t.config.Level, level) {
		metrics.LogsFiltered.Inc()
		callback(nil, true)
		return
	}

	err := t.processor.AddEntry(logging.LogEntry{Level: level, Message: message, Metadata: meta})
	if err != nil {
		callback(err, false)
		return
	}

	metrics.LogsAccepted.WithLabelValues(level).Inc()
	t.events.emit(Event{Name: EventLogged})
	callback(nil, true)
}

// Flush delivers anything queued without waiting for the debounce timer.
func (t *Transport) Flush() {
	t.processor.Flush()
}

// Close flushes pending entries and waits for in-flight mail until ctx ends.
func (t *Transport) Close(ctx context.Context) error {
	return t.processor.Close(ctx)
}

func (t *Transport) deliver(entries []logging.LogEntry) {
	combined := t.formatter.Format(entries)

	metrics.Flushes.Inc()
	metrics.FlushedEntries.Observe(float64(len(entries)))
	t.events.emit(Event{Name: EventMailSending, Entries: len(entries), Subject: combined.Subject})

	err := t.sender.Send(logging.Mail{
		From:    t.config.From,
		To:      t.config.To,
		Subject: combined.Subject,
		Body:    combined.Body,
	})
	if err != nil {
		t.log.Errorw("Failed to deliver log mail, batch dropped",
			"entries", len(entries),
			"subject", combined.Subject,
			"error", err)
		t.events.emit(Event{Name: EventError, Entries: len(entries), Subject: combined.Subject, Err: err})
		return
	}

	t.log.Debugw("Log mail delivered", "entries", len(entries), "subject", combined.Subject)
	t.events.emit(Event{Name: EventMailSent, Entries: len(entries), Subject: combined.Subject})
}
