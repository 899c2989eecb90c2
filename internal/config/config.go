package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/mail"
)

const envPrefix = "LOGMAILER_"

type Config struct {
	Transport   logging.Config `yaml:"transport"`
	SMTP        mail.Config    `yaml:"smtp"`
	Daemon      DaemonConfig   `yaml:"daemon"`
	LogLevel    string         `yaml:"logLevel"`
	MetricsAddr string         `yaml:"metricsAddr"`
}

type DaemonConfig struct {
	LogRootPath     string        `yaml:"logRootPath"`
	ScanInterval    time.Duration `yaml:"scanInterval"`
	Workers         int           `yaml:"workers"`
	FileQueueSize   int           `yaml:"fileQueueSize"`
	NodeName        string        `yaml:"nodeName"`
	FileIdleTimeout time.Duration `yaml:"fileIdleTimeout"`
}

func Default() Config {
	return Config{
		Transport: logging.Config{
			Level:             logging.DefaultLevel,
			MessageQueueLimit: logging.DefaultMessageQueueLimit,
		},
		SMTP: mail.Config{
			Port: mail.DefaultPort,
		},
		Daemon: DaemonConfig{
			LogRootPath:   "/var/log/app",
			ScanInterval:  30 * time.Second,
			Workers:       4,
			FileQueueSize: 50,
			NodeName:      hostname(),
		},
		LogLevel: "info",
	}
}

// Load reads the YAML file at path (skipped when path is empty), then applies
// LOGMAILER_* environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := getEnv(envPrefix+"TO", ""); v != "" {
		cfg.Transport.To = splitList(v)
	}
	cfg.Transport.From = getEnv(envPrefix+"FROM", cfg.Transport.From)
	cfg.Transport.Level = getEnv(envPrefix+"LEVEL", cfg.Transport.Level)
	cfg.Transport.Silent = getEnvAsBool(envPrefix+"SILENT", cfg.Transport.Silent)
	cfg.Transport.Label = getEnv(envPrefix+"LABEL", cfg.Transport.Label)
	cfg.Transport.Subject = getEnv(envPrefix+"SUBJECT", cfg.Transport.Subject)
	cfg.Transport.WaitUntilSend = getEnvAsDuration(envPrefix+"WAIT_UNTIL_SEND", cfg.Transport.WaitUntilSend)
	cfg.Transport.MessageQueueLimit = getEnvAsInt(envPrefix+"MESSAGE_QUEUE_LIMIT", cfg.Transport.MessageQueueLimit)

	cfg.SMTP.Host = getEnv(envPrefix+"SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getEnvAsInt(envPrefix+"SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getEnv(envPrefix+"SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getEnv(envPrefix+"SMTP_PASSWORD", cfg.SMTP.Password)

	cfg.Daemon.LogRootPath = getEnv(envPrefix+"LOG_PATH", cfg.Daemon.LogRootPath)
	cfg.Daemon.ScanInterval = getEnvAsDuration(envPrefix+"SCAN_INTERVAL", cfg.Daemon.ScanInterval)
	cfg.Daemon.Workers = getEnvAsInt(envPrefix+"WORKERS", cfg.Daemon.Workers)
	cfg.Daemon.NodeName = getEnv(envPrefix+"NODE_NAME", cfg.Daemon.NodeName)
	cfg.Daemon.FileIdleTimeout = getEnvAsDuration(envPrefix+"FILE_IDLE_TIMEOUT", cfg.Daemon.FileIdleTimeout)

	cfg.LogLevel = getEnv(envPrefix+"LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = getEnv(envPrefix+"METRICS_ADDR", cfg.MetricsAddr)
}

// Validate checks what a running daemon needs; construction of the transport
// and sender repeats the checks that matter to them.
func (c Config) Validate() error {
	var errs []error
	if len(c.Transport.To) == 0 {
		errs = append(errs, errors.New("transport.to: at least one recipient is required"))
	}
	if c.SMTP.Host == "" {
		errs = append(errs, errors.New("smtp.host is required"))
	}
	if !c.SMTP.AllowAnonymous && (c.SMTP.Username == "" || c.SMTP.Password == "") {
		errs = append(errs, errors.New("smtp.username and smtp.password are required"))
	}
	if c.Transport.WaitUntilSend < 0 {
		errs = append(errs, errors.New("transport.waitUntilSend must not be negative"))
	}
	if c.Daemon.ScanInterval <= 0 {
		errs = append(errs, errors.New("daemon.scanInterval must be positive"))
	}
	if c.Daemon.Workers <= 0 {
		errs = append(errs, errors.New("daemon.workers must be positive"))
	}
	return errors.Join(errs...)
}

func hostname() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "unknown"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseBool(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if result, err := time.ParseDuration(value); err == nil {
			return result
		}
	}
	return defaultValue
}
