package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Chichichkin/LogMailer/internal/config"
	"github.com/Chichichkin/LogMailer/internal/daemon"
	"github.com/Chichichkin/LogMailer/internal/logging"
	"github.com/Chichichkin/LogMailer/internal/logging/transport"
	"github.com/Chichichkin/LogMailer/internal/mail"
	"github.com/Chichichkin/LogMailer/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

type rootOptions struct {
	configPath  string
	metricsAddr string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "logmailer",
		Short: "Tail log files and mail batched log lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("LOGMAILER_CONFIG"), "path to the YAML config file")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address for the Prometheus /metrics endpoint (overrides config)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "diagnostic log level (overrides config)")

	cmd.AddCommand(newValidateCmd(opts))
	return cmd
}

func newValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: %d recipient(s), smtp %s:%d\n",
				len(cfg.Transport.To), cfg.SMTP.Host, cfg.SMTP.Port)
			return nil
		},
	}
}

func run(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if opts.metricsAddr != "" {
		cfg.MetricsAddr = opts.metricsAddr
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	registry := transport.NewRegistry()
	if err := registry.Register(transport.Name, sesFactory(cfg.SMTP, log)); err != nil {
		return err
	}

	logger, err := registry.New(transport.Name, cfg.Transport)
	if err != nil {
		return err
	}
	mailTransport := logger.(*transport.Transport)
	mailTransport.On(transport.EventError, func(ev transport.Event) {
		log.Warnw("Log batch lost", "entries", ev.Entries, "error", ev.Err)
	})

	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	service := daemon.NewLogDaemonService(ctx, daemon.Config{
		LogRootPath:     cfg.Daemon.LogRootPath,
		ScanInterval:    cfg.Daemon.ScanInterval,
		Workers:         cfg.Daemon.Workers,
		FileQueueSize:   cfg.Daemon.FileQueueSize,
		NodeName:        cfg.Daemon.NodeName,
		FileIdleTimeout: cfg.Daemon.FileIdleTimeout,
	}, mailTransport, log)
	service.Start()

	<-ctx.Done()
	log.Info("Received shutdown signal")

	service.Stop()

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := mailTransport.Close(closeCtx); err != nil {
		log.Warnw("Mail transport did not drain before shutdown", "error", err)
	}
	log.Info("Shut down")
	return nil
}

func sesFactory(smtp mail.Config, log *zap.SugaredLogger) transport.Factory {
	return func(cfg logging.Config) (logging.Logger, error) {
		sender, err := mail.NewSender(smtp, log)
		if err != nil {
			return nil, fmt.Errorf("transport %s: %w", transport.Name, err)
		}
		t, err := transport.New(cfg, sender, transport.WithLogger(log))
		if err != nil {
			return nil, err
		}
		return t, nil
	}
}

func newLogger(level string) (*zap.SugaredLogger, error) {
	zapCfg := zap.NewProductionConfig()
	atomic, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zapCfg.Level = atomic
	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func startMetricsServer(addr string, log *zap.SugaredLogger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.MetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Infow("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("Metrics server failed", "error", err)
		}
	}()
	return srv
}
