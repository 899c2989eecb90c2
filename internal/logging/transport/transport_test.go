package transport

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/testutils"
)

type eventCounter struct {
	mu     sync.Mutex
	counts map[string]int
	last   map[string]Event
}

func watch(tr *Transport) *eventCounter {
	c := &eventCounter{counts: map[string]int{}, last: map[string]Event{}}
	for _, name := range []string{EventLogged, EventMailSending, EventMailSent, EventError} {
		tr.On(name, func(ev Event) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.counts[ev.Name]++
			c.last[ev.Name] = ev
		})
	}
	return c
}

func (c *eventCounter) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}

func (c *eventCounter) Last(name string) Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[name]
}

func newTestTransport(t *testing.T, config logging.Config, sender logging.Sender) (*Transport, *testingclock.FakeClock) {
	t.Helper()
	fakeClock := testingclock.NewFakeClock(time.Now())
	tr, err := New(config, sender, WithClock(fakeClock))
	require.NoError(t, err)
	return tr, fakeClock
}

func logOK(t *testing.T, tr *Transport, level, msg string, meta any) {
	t.Helper()
	called := false
	tr.Log(level, msg, meta, func(err error, logged bool) {
		called = true
		assert.NoError(t, err)
		assert.True(t, logged)
	})
	assert.True(t, called, "callback must run before Log returns")
}

func TestNew_Validation(t *testing.T) {
	sender := &testutils.MockSender{}

	_, err := New(logging.Config{}, sender)
	assert.ErrorIs(t, err, ErrMissingRecipients)

	_, err = New(logging.Config{To: []string{"ops@example.com"}}, nil)
	assert.ErrorIs(t, err, ErrMissingSender)

	_, err = New(logging.Config{To: []string{"ops@example.com"}, Subject: "{{ .Level "}, sender)
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	tr, _ := newTestTransport(t, logging.Config{To: []string{"ops@example.com"}}, &testutils.MockSender{})

	cfg := tr.Config()
	assert.True(t, strings.HasPrefix(cfg.From, "logmailer@"))
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 500, cfg.MessageQueueLimit)
	assert.Equal(t, time.Duration(0), cfg.WaitUntilSend)
	assert.Equal(t, Name, tr.Name())
}

func TestTransport_BurstWithinWindow(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, fakeClock := newTestTransport(t, logging.Config{
		To:                []string{"ops@example.com"},
		From:              "app@example.com",
		WaitUntilSend:     50 * time.Millisecond,
		MessageQueueLimit: 10,
	}, sender)
	events := watch(tr)

	logOK(t, tr, "info", "A", nil)
	logOK(t, tr, "info", "A", nil)
	logOK(t, tr, "error", "B", nil)
	assert.Equal(t, 3, events.Count(EventLogged))

	fakeClock.Step(49 * time.Millisecond)
	assert.Empty(t, sender.GetSent())

	fakeClock.Step(time.Millisecond)

	sent := sender.GetSent()
	require.Len(t, sent, 1)
	mail := sent[0]
	assert.Equal(t, "app@example.com", mail.From)
	assert.Equal(t, []string{"ops@example.com"}, mail.To)
	assert.Equal(t, "(info) A (2), (error) B (1)", mail.Subject)
	assert.Equal(t, 2, strings.Count(mail.Body, "A\n"))
	assert.Equal(t, 1, strings.Count(mail.Body, "B\n"))
	assert.Less(t, strings.LastIndex(mail.Body, "A\n"), strings.Index(mail.Body, "B\n"))

	assert.Equal(t, 1, events.Count(EventMailSending))
	assert.Equal(t, 1, events.Count(EventMailSent))
	assert.Equal(t, 3, events.Last(EventMailSent).Entries)
	assert.Equal(t, 0, tr.processor.Size())
}

func TestTransport_QueueLimitForcesImmediateFlush(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, fakeClock := newTestTransport(t, logging.Config{
		To:                []string{"ops@example.com"},
		WaitUntilSend:     time.Hour,
		MessageQueueLimit: 2,
	}, sender)

	logOK(t, tr, "info", "one", nil)
	logOK(t, tr, "info", "two", nil)
	logOK(t, tr, "info", "three", nil)

	fakeClock.Step(0)

	sent := sender.GetSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "(info) one (1), (info) two (1), (info) three (1)", sent[0].Subject)
	assert.Equal(t, 0, tr.processor.Size())
}

func TestTransport_DeliveryFailureDropsBatch(t *testing.T) {
	sender := &testutils.MockSender{ShouldFail: true}
	tr, fakeClock := newTestTransport(t, logging.Config{
		To:                []string{"ops@example.com"},
		WaitUntilSend:     10 * time.Millisecond,
		MessageQueueLimit: 10,
	}, sender)
	events := watch(tr)

	logOK(t, tr, "error", "db down", map[string]any{"host": "db-1"})
	fakeClock.Step(10 * time.Millisecond)

	assert.Equal(t, 1, sender.GetAttempts())
	assert.Equal(t, 1, events.Count(EventMailSending))
	assert.Equal(t, 1, events.Count(EventError))
	assert.Equal(t, 0, events.Count(EventMailSent))
	assert.Error(t, events.Last(EventError).Err)
	assert.Equal(t, 0, tr.processor.Size())

	// nothing is retried later
	fakeClock.Step(time.Hour)
	assert.Equal(t, 1, sender.GetAttempts())
	assert.Equal(t, 1, events.Count(EventError))
}

func TestTransport_Silent(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, fakeClock := newTestTransport(t, logging.Config{
		To:     []string{"ops@example.com"},
		Silent: true,
	}, sender)
	events := watch(tr)

	for i := 0; i < 5; i++ {
		logOK(t, tr, "error", "ignored", nil)
	}
	fakeClock.Step(time.Hour)
	tr.Flush()

	assert.Equal(t, 0, sender.GetAttempts())
	assert.Equal(t, 0, events.Count(EventLogged))
	assert.Equal(t, 0, events.Count(EventMailSending))
}

func TestTransport_LevelFilter(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, fakeClock := newTestTransport(t, logging.Config{
		To:    []string{"ops@example.com"},
		Level: "warn",
	}, sender)
	events := watch(tr)

	logOK(t, tr, "info", "chatty", nil)
	logOK(t, tr, "debug", "chattier", nil)
	logOK(t, tr, "warn", "careful", nil)
	logOK(t, tr, "error", "broken", nil)
	fakeClock.Step(0)

	assert.Equal(t, 2, events.Count(EventLogged))
	sent := sender.GetSent()
	require.Len(t, sent, 1)
	assert.Equal(t, "(warn) careful (1), (error) broken (1)", sent[0].Subject)
}

func TestTransport_NilCallback(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, fakeClock := newTestTransport(t, logging.Config{To: []string{"ops@example.com"}}, sender)

	assert.NotPanics(t, func() { tr.Log("info", "no callback", nil, nil) })
	fakeClock.Step(0)
	assert.Len(t, sender.GetSent(), 1)
}

func TestTransport_CloseFlushesAndRejects(t *testing.T) {
	sender := &testutils.MockSender{}
	tr, _ := newTestTransport(t, logging.Config{
		To:            []string{"ops@example.com"},
		WaitUntilSend: time.Hour,
	}, sender)

	logOK(t, tr, "info", "pending", nil)
	require.NoError(t, tr.Close(context.Background()))
	require.Len(t, sender.GetSent(), 1)

	var gotErr error
	var gotLogged bool
	tr.Log("info", "late", nil, func(err error, logged bool) {
		gotErr, gotLogged = err, logged
	})
	assert.True(t, errors.Is(gotErr, ErrClosed))
	assert.False(t, gotLogged)
}

func TestTransport_RealClockAsyncDelivery(t *testing.T) {
	sender := &testutils.MockSender{Delay: 20 * time.Millisecond}
	tr, err := New(logging.Config{
		To:            []string{"ops@example.com"},
		WaitUntilSend: 10 * time.Millisecond,
	}, sender)
	require.NoError(t, err)

	start := time.Now()
	logOK(t, tr, "info", "async", nil)
	assert.Less(t, time.Since(start), 10*time.Millisecond, "Log must not wait for delivery")

	assert.Eventually(t, func() bool { return len(sender.GetSent()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, tr.Close(context.Background()))
}

func TestLevelEnabled(t *testing.T) {
	assert.True(t, LevelEnabled("info", "error"))
	assert.True(t, LevelEnabled("info", "info"))
	assert.False(t, LevelEnabled("info", "debug"))
	assert.True(t, LevelEnabled("silly", "debug"))
	assert.True(t, LevelEnabled("error", "fatal"))
	assert.False(t, LevelEnabled("error", "WARN"))
	assert.True(t, LevelEnabled("info", "custom"))
	assert.False(t, LevelEnabled("bogus", "debug"), "unknown minimum falls back to info")
	assert.True(t, KnownLevel("Verbose"))
	assert.False(t, KnownLevel("custom"))
}
