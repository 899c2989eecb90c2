package mail

import (
	"crypto/tls"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/metrics"
)

var (
	ErrMissingHost        = errors.New("mail sender requires an SMTP host")
	ErrMissingCredentials = errors.New("mail sender requires username and password")
	ErrNoRecipients       = errors.New("mail has no recipients")
)

// Config describes the SMTP endpoint. For Amazon SES the username and password
// are the SMTP credentials derived from the access key pair.
type Config struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	Username           string `yaml:"username"`
	Password           string `yaml:"password"`
	SenderName         string `yaml:"senderName"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
	// AllowAnonymous permits an unauthenticated relay.
	AllowAnonymous bool `yaml:"allowAnonymous"`
}

const DefaultPort = 587

var _ logging.Sender = (*Sender)(nil)

// Sender delivers each mail with a single DialAndSend; failures are returned,
// never retried.
type Sender struct {
	dialer     *gomail.Dialer
	senderName string
	log        *zap.SugaredLogger
}

func NewSender(cfg Config, log *zap.SugaredLogger) (*Sender, error) {
	if cfg.Host == "" {
		return nil, ErrMissingHost
	}
	if !cfg.AllowAnonymous && (cfg.Username == "" || cfg.Password == "") {
		return nil, ErrMissingCredentials
	}
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("mail")

	log.Infow("Initializing mail sender", "host", cfg.Host, "port", cfg.Port, "user", cfg.Username)
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		log.Warnw("InsecureSkipVerify is enabled for mail TLS connection", "host", cfg.Host)
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Sender{dialer: d, senderName: cfg.SenderName, log: log}, nil
}

func (s *Sender) Send(m logging.Mail) error {
	if len(m.To) == 0 {
		metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
		return ErrNoRecipients
	}

	msg := gomail.NewMessage()
	if s.senderName != "" {
		msg.SetAddressHeader("From", m.From, s.senderName)
	} else {
		msg.SetHeader("From", m.From)
	}
	msg.SetHeader("To", m.To...)
	msg.SetHeader("Subject", m.Subject)
	msg.SetBody("text/html", m.Body)

	if err := s.dialer.DialAndSend(msg); err != nil {
		metrics.MailSendFailure.WithLabelValues(s.GetHost()).Inc()
		return fmt.Errorf("send mail via %s:%d: %w", s.GetHost(), s.GetPort(), err)
	}

	s.log.Debugw("Mail sent", "receivers", len(m.To), "subject", m.Subject)
	metrics.MailSendSuccess.WithLabelValues(s.GetHost()).Inc()
	return nil
}

func (s *Sender) GetHost() string {
	return s.dialer.Host
}

func (s *Sender) GetPort() int {
	return s.dialer.Port
}
