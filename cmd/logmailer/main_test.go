package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/logging/transport"
	"github.com/Chichichkin/LogMailer/internal/mail"
)

func TestValidateCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
transport:
  to: [ops@example.com]
smtp:
  host: email-smtp.us-east-1.amazonaws.com
  username: AKIA
  password: secret
`), 0644))

	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetArgs([]string{"validate", "--config", path})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "1 recipient(s)")
}

func TestValidateCommand_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport: {}\n"), 0644))

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "--config", path})

	assert.Error(t, cmd.Execute())
}

func TestSESFactory(t *testing.T) {
	log, err := newLogger("error")
	require.NoError(t, err)

	registry := transport.NewRegistry()
	require.NoError(t, registry.Register(transport.Name, sesFactory(mail.Config{
		Host:     "email-smtp.us-east-1.amazonaws.com",
		Username: "AKIA",
		Password: "secret",
	}, log)))

	logger, err := registry.New(transport.Name, logging.Config{To: []string{"ops@example.com"}})
	require.NoError(t, err)
	assert.IsType(t, &transport.Transport{}, logger)

	noCreds := transport.NewRegistry()
	require.NoError(t, noCreds.Register(transport.Name, sesFactory(mail.Config{Host: "smtp.example.com"}, log)))
	_, err = noCreds.New(transport.Name, logging.Config{To: []string{"ops@example.com"}})
	assert.ErrorIs(t, err, mail.ErrMissingCredentials)
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := newLogger("loud")
	assert.Error(t, err)
}
