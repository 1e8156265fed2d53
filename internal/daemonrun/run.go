package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"ytreport/internal/config"
	"ytreport/internal/daemon"
	"ytreport/internal/logging"
	"ytreport/internal/pipeline"
	"ytreport/internal/store"
)

const (
	logFileName = "ytreport.log"
	pidFileName = "ytreport.pid"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// PIDPath returns where the running daemon records its process id.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, pidFileName)
}

// Run starts the ytreport daemon and blocks until the context is cancelled or
// the process receives SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if err := cfg.RequireLLMKeys(); err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	archived, archiveErr := archivePreviousLog(cfg.Paths.LogDir, time.Now())
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to archive previous log: %v\n", archiveErr)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if archived != "" {
		logger.Debug("archived previous daemon log", logging.String("path", archived))
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "ytreport-*.log"},
	)
	logConfigSnapshot(logger, cfg)

	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	st, err := store.Open(cfg)
	if err != nil {
		logger.Error("open result store", logging.Error(err))
		return err
	}

	svc, err := pipeline.New(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("build pipeline: %w", err)
	}
	d, err := daemon.New(cfg, st, svc, logger)
	if err != nil {
		_ = st.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the api bind address and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("ytreport daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// archivePreviousLog renames the last session's log so each daemon start
// writes a fresh ytreport.log and retention can prune old sessions.
func archivePreviousLog(logDir string, now time.Time) (string, error) {
	if strings.TrimSpace(logDir) == "" {
		return "", nil
	}
	current := filepath.Join(logDir, logFileName)
	info, err := os.Stat(current)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", nil
	}
	target := filepath.Join(logDir, fmt.Sprintf("ytreport-%s.log", now.UTC().Format("20060102T150405.000Z")))
	if err := os.Rename(current, target); err != nil {
		return "", fmt.Errorf("rename log: %w", err)
	}
	return target, nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logConfigSnapshot(logger *slog.Logger, cfg *config.Config) {
	analysis := cfg.AnalysisLLM()
	report := cfg.ReportLLM()
	logger.Info("configuration snapshot",
		logging.String(logging.FieldEventType, "config_snapshot"),
		logging.String("database", cfg.DatabasePath()),
		logging.String("api_bind", cfg.Paths.APIBind),
		logging.Bool("api_token_set", strings.TrimSpace(cfg.Paths.APIToken) != ""),
		logging.Int("workers", cfg.Workflow.Workers),
		logging.String("analysis_model", analysis.Model),
		logging.String("report_model", report.Model),
		logging.String("youtube_language", cfg.YouTube.Language),
		logging.Int("retry_max_attempts", cfg.Retry.MaxAttempts),
	)
}
