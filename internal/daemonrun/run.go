// Package daemonrun hosts the foreground daemon process used by
// "captioner serve": logging, retention, preflight, and signal handling
// around a daemon.Daemon.
package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"captioner/internal/config"
	"captioner/internal/daemon"
	"captioner/internal/logging"
	"captioner/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel string
}

// Run starts the captioner daemon and blocks until ctx ends or the process
// receives SIGINT/SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := archivePreviousLog(cfg.LogPath()); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to archive previous log: %v\n", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "captioner-*.log", Exclude: []string{cfg.LogPath()}},
	)

	logPreflight(signalCtx, logger, cfg)

	d, err := daemon.New(cfg, daemon.Options{Logger: logger})
	if err != nil {
		logging.ErrorWithContext(logger, "daemon setup failed", "daemon_setup_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check configuration and catalog access"),
		)
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}

	<-signalCtx.Done()
	logger.Info("captioner daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

// archivePreviousLog renames a non-empty log from an earlier run to
// captioner-<mtime>.log so retention can prune it.
func archivePreviousLog(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Size() == 0 {
		return nil
	}
	stamp := info.ModTime().UTC().Format("20060102T150405")
	archived := filepath.Join(filepath.Dir(path), fmt.Sprintf("captioner-%s.log", stamp))
	return os.Rename(path, archived)
}

func logPreflight(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	checkCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	results := preflight.RunAll(checkCtx, cfg)
	for _, r := range results {
		if r.Passed {
			logger.Debug("preflight passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
			)
			continue
		}
		impact := "jobs depending on this check will fail"
		if r.Optional {
			impact = "translation requests will fail"
		}
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldImpact, impact),
		)
	}
	logger.Info("preflight complete",
		logging.Int("checks", len(results)),
		logging.Int("failed", len(preflight.Failed(results))),
		logging.String(logging.FieldEventType, "preflight_complete"),
	)
}
