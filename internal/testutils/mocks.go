package testutils

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

type MockSender struct {
	Sent       []logging.Mail
	Attempts   int
	mu         sync.Mutex
	ShouldFail bool
	Delay      time.Duration
}

func (m *MockSender) Send(mail logging.Mail) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Attempts++
	if m.ShouldFail {
		return fmt.Errorf("mock send failed")
	}

	m.Sent = append(m.Sent, mail)
	return nil
}

func (m *MockSender) GetSent() []logging.Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]logging.Mail, len(m.Sent))
	copy(out, m.Sent)
	return out
}

func (m *MockSender) GetAttempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Attempts
}

// LoggedCall is one recorded Log invocation.
type LoggedCall struct {
	Level   string
	Message string
	Meta    any
}

type MockLogger struct {
	Calls   []LoggedCall
	Flushes int
	mu      sync.Mutex
}

func (m *MockLogger) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Flushes++
}

func (m *MockLogger) GetFlushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Flushes
}

func (m *MockLogger) Log(level, message string, meta any, callback logging.Callback) {
	m.mu.Lock()
	m.Calls = append(m.Calls, LoggedCall{Level: level, Message: message, Meta: meta})
	m.mu.Unlock()

	if callback != nil {
		callback(nil, true)
	}
}

func (m *MockLogger) GetCalls() []LoggedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LoggedCall, len(m.Calls))
	copy(out, m.Calls)
	return out
}

func CreateTempLogStructure(t *testing.T) string {
	tempDir := t.TempDir()

	structure := map[string]string{
		"api/access.log":          "GET /health 200\n",
		"api/error.log":           "error: connection refused\n",
		"worker/jobs.log":         "{\"level\":\"warn\",\"msg\":\"job slow\"}\n",
		"worker/nested/sweep.log": "sweep done\n",
		"worker/notes.txt":        "not a log\n",
	}

	for path, content := range structure {
		fullPath := filepath.Join(tempDir, path)
		dir := filepath.Dir(fullPath)

		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatalf("Failed to create directory %s: %v", dir, err)
		}

		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write file %s: %v", fullPath, err)
		}
	}

	return tempDir
}
