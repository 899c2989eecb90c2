package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LogsAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmailer_logs_accepted_total",
		Help: "Total number of log calls accepted into the mail queue",
	}, []string{"level"})
	LogsFiltered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logmailer_logs_filtered_total",
		Help: "Total number of log calls dropped by the level filter",
	})
	Flushes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logmailer_flushes_total",
		Help: "Total number of batch flushes that attempted a delivery",
	})
	FlushedEntries = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "logmailer_flushed_entries",
		Help:    "Number of log entries combined into one mail",
		Buckets: prometheus.ExponentialBuckets(1, 4, 6),
	})
	MailSendSuccess = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmailer_mail_send_success_total",
		Help: "Total number of successful mail sends",
	}, []string{"host"})
	MailSendFailure = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmailer_mail_send_failure_total",
		Help: "Total number of failed mail sends",
	}, []string{"host"})
	LinesTailed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "logmailer_lines_tailed_total",
		Help: "Total number of lines read from tailed log files",
	})
	DaemonFiles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logmailer_daemon_files_total",
		Help: "Total number of log files by daemon outcome (discovered, processed, failed)",
	}, []string{"outcome"})
	DaemonQueuedFiles = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logmailer_daemon_queued_files",
		Help: "Number of discovered files waiting for a worker",
	})
	DaemonWorkersBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logmailer_daemon_workers_busy",
		Help: "Number of daemon workers currently tailing a file",
	})
)

func init() {
	prometheus.MustRegister(LogsAccepted)
	prometheus.MustRegister(LogsFiltered)
	prometheus.MustRegister(Flushes)
	prometheus.MustRegister(FlushedEntries)
	prometheus.MustRegister(MailSendSuccess)
	prometheus.MustRegister(MailSendFailure)
	prometheus.MustRegister(LinesTailed)
	prometheus.MustRegister(DaemonFiles)
	prometheus.MustRegister(DaemonQueuedFiles)
	prometheus.MustRegister(DaemonWorkersBusy)
}

// MetricsHandler returns an http.Handler exposing Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
