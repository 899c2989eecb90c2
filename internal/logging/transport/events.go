package transport

import "sync"

const (
	EventLogged      = "logged"
	EventMailSending = "mail.sending"
	EventMailSent    = "mail.sent"
	EventError       = "error"
)

// Event is passed to listeners. Entries is the batch size for mail events;
// Err is set only for EventError.
type Event struct {
	Name    string
	Entries int
	Subject string
	Err     error
}

type Listener func(Event)

type emitter struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

func (e *emitter) on(name string, l Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners == nil {
		e.listeners = make(map[string][]Listener)
	}
	e.listeners[name] = append(e.listeners[name], l)
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	listeners := e.listeners[ev.Name]
	e.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
