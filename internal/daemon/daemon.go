package daemon

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hpcloud/tail"
	"go.uber.org/zap"

	"github.com/Chichichkin/LogMailer/internal/logging"
)

// LogDaemonService discovers *.log files below a root directory and feeds
// every appended line into a logging.Logger.
type LogDaemonService struct {
	config        Config
	logger        logging.Logger
	log           *zap.SugaredLogger
	fileQueue     chan string
	workersWg     sync.WaitGroup
	subServicesWg sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
	metrics       *LogDaemonMetrics

	seenMu    sync.Mutex
	seenFiles map[string]struct{}
}

type Config struct {
	LogRootPath   string
	ScanInterval  time.Duration
	Workers       int
	FileQueueSize int
	NodeName      string
	// If > 0, stop tailing a file after this period without new lines
	FileIdleTimeout time.Duration
	// FromStart tails files from their beginning instead of their end.
	FromStart bool
	// MetricsInterval controls the periodic counters log line; zero means 30s.
	MetricsInterval time.Duration
}

func NewLogDaemonService(ctx context.Context, config Config, logger logging.Logger, log *zap.SugaredLogger) *LogDaemonService {
	nCtx, cancel := context.WithCancel(ctx)
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if config.FileQueueSize <= 0 {
		config.FileQueueSize = 1
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &LogDaemonService{
		config:    config,
		logger:    logger,
		log:       log.Named("daemon"),
		fileQueue: make(chan string, config.FileQueueSize),
		ctx:       nCtx,
		cancel:    cancel,
		metrics: &LogDaemonMetrics{
			FilesQueueCapacity: config.FileQueueSize,
		},
		seenFiles: make(map[string]struct{}),
	}
}

func (s *LogDaemonService) Start() {
	s.log.Infow("Starting log daemon service",
		"root", s.config.LogRootPath,
		"workers", s.config.Workers,
		"queueSize", s.config.FileQueueSize)

	for i := 0; i < s.config.Workers; i++ {
		s.workersWg.Add(1)
		go s.worker(i)
	}

	s.subServicesWg.Add(1)
	go s.scanner()

	s.subServicesWg.Add(1)
	go s.metricsReporter()
}

func (s *LogDaemonService) Stop() {
	s.log.Info("Stopping log daemon service")
	s.cancel()

	s.subServicesWg.Wait()

	close(s.fileQueue)
	s.workersWg.Wait()

	s.log.Info("Log daemon service stopped")
}

// Metrics returns a snapshot of the daemon counters.
func (s *LogDaemonService) Metrics() LogDaemonMetrics {
	return s.metrics.GetMetricsStamp()
}

func (s *LogDaemonService) worker(id int) {
	defer s.workersWg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("Worker panicked", "worker", id, "panic", r)
		}
	}()

	for {
		select {
		case filePath, ok := <-s.fileQueue:
			if !ok {
				return
			}
			s.metrics.DecAmountQueueFiles()
			s.metrics.IncWorkersBusy()
			s.processFile(filePath)
			s.metrics.DecWorkersBusy()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) processFile(filePath string) {
	defer s.metrics.IncFilesProcessed()
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("File processing panicked", "file", filePath, "panic", r)
			s.metrics.IncFilesFailed()
		}
	}()

	location := &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd}
	if s.config.FromStart {
		location = nil
	}

	t, err := tail.TailFile(filePath, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: location,
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		s.log.Warnw("Failed to tail file", "file", filePath, "error", err)
		s.metrics.IncFilesFailed()
		s.forget(filePath)
		return
	}
	defer t.Cleanup()
	defer func() { _ = t.Stop() }()

	if s.follow(filePath, t.Lines) {
		s.log.Warnw("Tail stopped", "file", filePath, "error", t.Err())
		s.metrics.IncFilesFailed()
		s.forget(filePath)
	}
}

// follow forwards lines until the context ends, the file goes idle or the
// lines channel is closed. It reports whether the channel was closed.
func (s *LogDaemonService) follow(filePath string, lines <-chan *tail.Line) bool {
	checkTicker := time.NewTicker(1 * time.Second)
	defer checkTicker.Stop()

	lastActivity := time.Now()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return true
			}
			if line == nil {
				continue
			}
			if line.Err != nil {
				s.log.Warnw("Error reading file", "file", filePath, "error", line.Err)
				continue
			}
			if strings.TrimSpace(line.Text) == "" {
				continue
			}

			s.emit(filePath, line.Text)
			lastActivity = time.Now()

		case <-checkTicker.C:
			// waking up from blocking line reading to check idle timeout
			if s.config.FileIdleTimeout > 0 && time.Since(lastActivity) > s.config.FileIdleTimeout {
				s.log.Debugw("File idle, stop tailing", "file", filePath)
				s.forget(filePath)
				return false
			}
		case <-s.ctx.Done():
			return false
		}
	}
}

func (s *LogDaemonService) emit(filePath, text string) {
	level, message, meta := parseLine(text)
	meta["file"] = filePath
	meta["node"] = s.config.NodeName

	s.metrics.IncLinesRead()

	s.logger.Log(level, message, meta, func(err error, _ bool) {
		if err != nil {
			s.log.Warnw("Log line rejected", "file", filePath, "error", err)
		}
	})
}

// forget lets the next scan pick the file up again.
func (s *LogDaemonService) forget(filePath string) {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	delete(s.seenFiles, filePath)
}

func (s *LogDaemonService) scanner() {
	defer s.subServicesWg.Done()

	s.scanFiles()

	ticker := time.NewTicker(s.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.scanFiles()

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) scanFiles() {
	files, err := s.discoverLogFiles()
	if err != nil {
		s.log.Warnw("Error discovering log files", "root", s.config.LogRootPath, "error", err)
		return
	}

	for _, file := range files {
		s.seenMu.Lock()
		_, seen := s.seenFiles[file]
		if !seen {
			s.seenFiles[file] = struct{}{}
		}
		s.seenMu.Unlock()
		if seen {
			continue
		}

		s.metrics.IncFilesDiscovered()
		select {
		case s.fileQueue <- file:
			s.metrics.IncAmountQueueFiles()
		case <-s.ctx.Done():
			return
		default:
			s.log.Warnw("File queue full, skipping",
				"file", file,
				"queued", len(s.fileQueue),
				"capacity", cap(s.fileQueue))
			s.forget(file)
		}
	}
}

func (s *LogDaemonService) metricsReporter() {
	defer s.subServicesWg.Done()

	ticker := time.NewTicker(s.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m := s.metrics.GetMetricsStamp()
			s.log.Infow("Daemon metrics",
				"workers", s.config.Workers,
				"workersBusy", m.WorkersBusy,
				"queuedFiles", m.QueuedFiles,
				"queueUsagePct", int(s.metrics.GetQueueUsage()*100),
				"filesDiscovered", m.FilesDiscovered,
				"filesProcessed", m.FilesProcessed,
				"filesFailed", m.FilesFailed,
				"linesRead", m.LinesRead)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LogDaemonService) discoverLogFiles() ([]string, error) {
	var logFiles []string

	err := filepath.Walk(s.config.LogRootPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			s.log.Debugw("Error accessing path", "path", path, "error", err)
			return nil
		}

		if !info.IsDir() && strings.HasSuffix(info.Name(), ".log") {
			logFiles = append(logFiles, path)
		}
		return nil
	})

	return logFiles, err
}
