package logging

import (
	"time"
)

const (
	DefaultLevel             = "info"
	DefaultMessageQueueLimit = 500
)

// LogEntry is one accepted log call. It is not modified after it is queued.
type LogEntry struct {
	Level    string
	Message  string
	Metadata any
}

// CombinedMessage is the subject/body pair built from one drained batch.
type CombinedMessage struct {
	Subject string
	Body    string
}

// Mail is what a Sender delivers.
type Mail struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Callback reports that a log call has been accepted into the pipeline.
// It says nothing about delivery.
type Callback func(err error, logged bool)

type Logger interface {
	Log(level, message string, meta any, callback Callback)
}

type Sender interface {
	Send(mail Mail) error
}

type Config struct {
	To      []string `yaml:"to"`
	From    string   `yaml:"from"`
	Level   string   `yaml:"level"`
	Silent  bool     `yaml:"silent"`
	Label   string   `yaml:"label"`
	Subject string   `yaml:"subject"`
	// WaitUntilSend is the quiet period before a batch is sent; zero sends on
	// the next scheduling opportunity.
	WaitUntilSend time.Duration `yaml:"waitUntilSend"`
	// MessageQueueLimit forces a zero-delay flush once this many entries are queued.
	MessageQueueLimit int `yaml:"messageQueueLimit"`
}

// WithDefaults returns a copy of c with unset optional fields filled in.
// From is left alone because its default depends on the host.
func (c Config) WithDefaults() Config {
	if c.Level == "" {
		c.Level = DefaultLevel
	}
	if c.MessageQueueLimit <= 0 {
		c.MessageQueueLimit = DefaultMessageQueueLimit
	}
	if c.WaitUntilSend < 0 {
		c.WaitUntilSend = 0
	}
	return c
}
