package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"captioner/internal/config"
	"captioner/internal/fileutil"
	"captioner/internal/jobs"
	"captioner/internal/logging"
)

const (
	defaultSettle       = 2 * time.Second
	defaultPollInterval = time.Second
	minTick             = 10 * time.Millisecond
)

// Submitter accepts transcription jobs.
type Submitter interface {
	SubmitTranscription(ctx context.Context, req jobs.TranscriptionRequest) (string, error)
}

// Options configure a Watcher.
type Options struct {
	Dir       string
	UploadDir string
	Language  string
	// Settle is how long a file must stay unchanged before pickup.
	Settle time.Duration
	// Poll disables fsnotify, for filesystems that do not deliver events.
	Poll         bool
	PollInterval time.Duration
	Allowed      func(ext string) bool
}

// OptionsFromConfig derives watcher options from the daemon configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Dir:       cfg.Watch.Dir,
		UploadDir: cfg.Paths.UploadDir,
		Language:  cfg.Watch.Language,
		Settle:    time.Duration(cfg.Watch.SettleMillis) * time.Millisecond,
		Allowed:   cfg.AllowedExtension,
	}
}

type pendingFile struct {
	size    int64
	modTime time.Time
	seen    time.Time
}

// Watcher moves settled inbox files into the upload directory and submits them.
type Watcher struct {
	opts    Options
	submit  Submitter
	logger  *slog.Logger
	pending map[string]pendingFile
	now     func() time.Time
}

// New constructs a watcher. Zero durations fall back to defaults.
func New(opts Options, submit Submitter, logger *slog.Logger) *Watcher {
	if opts.Settle <= 0 {
		opts.Settle = defaultSettle
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Allowed == nil {
		opts.Allowed = func(string) bool { return true }
	}
	return &Watcher{
		opts:    opts,
		submit:  submit,
		logger:  logging.NewComponentLogger(logger, "watch"),
		pending: make(map[string]pendingFile),
		now:     time.Now,
	}
}

// Run watches until ctx is cancelled. Files already present are picked up too.
// Submission uses ctx, so callers cancel it only on shutdown.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
		return fmt.Errorf("create watch directory: %w", err)
	}

	if w.opts.Poll {
		return w.runPolling(ctx)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.WarnWithContext(w.logger, "fsnotify unavailable; polling inbox", "watch_fallback",
			logging.Error(err),
			logging.String(logging.FieldImpact, "new files are noticed on the poll interval"),
		)
		return w.runPolling(ctx)
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			w.logger.Debug("close fsnotify watcher", logging.Error(err))
		}
	}()
	if err := watcher.Add(w.opts.Dir); err != nil {
		logging.WarnWithContext(w.logger, "cannot watch inbox; polling", "watch_fallback",
			logging.String("dir", w.opts.Dir),
			logging.Error(err),
		)
		return w.runPolling(ctx)
	}
	w.scan()

	w.logger.Info("inbox watcher started",
		logging.String("dir", w.opts.Dir),
		logging.Duration("settle", w.opts.Settle),
		logging.String(logging.FieldEventType, "watch_started"),
	)
	ticker := time.NewTicker(max(w.opts.Settle/2, minTick))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return w.runPolling(ctx)
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				w.touch(event.Name)
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				delete(w.pending, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return w.runPolling(ctx)
			}
			logging.WarnWithContext(w.logger, "inbox watcher error", "watch_error", logging.Error(err))
		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context) error {
	w.logger.Info("inbox watcher started (polling)",
		logging.String("dir", w.opts.Dir),
		logging.Duration("interval", w.opts.PollInterval),
		logging.String(logging.FieldEventType, "watch_started"),
	)
	w.scan()
	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.scan()
			w.flush(ctx)
		}
	}
}

// scan registers every candidate file currently in the inbox.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.opts.Dir)
	if err != nil {
		logging.WarnWithContext(w.logger, "read inbox failed", "watch_error", logging.Error(err))
		return
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		w.touch(filepath.Join(w.opts.Dir, entry.Name()))
	}
}

// touch records the latest size and mtime of path. Any change restarts the
// settle clock.
func (w *Watcher) touch(path string) {
	if !w.candidate(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		delete(w.pending, path)
		return
	}
	prev, ok := w.pending[path]
	if ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		return
	}
	w.pending[path] = pendingFile{size: info.Size(), modTime: info.ModTime(), seen: w.now()}
}

func (w *Watcher) candidate(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false
	}
	return w.opts.Allowed(strings.TrimPrefix(filepath.Ext(name), "."))
}

// flush submits files that have been quiet for the settle period.
func (w *Watcher) flush(ctx context.Context) {
	now := w.now()
	for path, p := range w.pending {
		w.touch(path)
		current, ok := w.pending[path]
		if !ok || current.seen != p.seen || now.Sub(p.seen) < w.opts.Settle {
			continue
		}
		delete(w.pending, path)
		w.ingest(ctx, path)
	}
}

func (w *Watcher) ingest(ctx context.Context, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	id := jobs.NewID()
	dest := filepath.Join(w.opts.UploadDir, id+ext)
	if err := fileutil.MoveFile(path, dest); err != nil {
		logging.ErrorWithContext(w.logger, "move inbox file failed", "watch_move_failed",
			logging.String("file", path),
			logging.Error(err),
		)
		return
	}
	jobID, err := w.submit.SubmitTranscription(ctx, jobs.TranscriptionRequest{
		ID:       id,
		Path:     dest,
		Language: w.opts.Language,
	})
	if err != nil {
		logging.ErrorWithContext(w.logger, "inbox submission failed", "watch_submit_failed",
			logging.String("file", path),
			logging.String("upload", dest),
			logging.Error(err),
		)
		return
	}
	w.logger.Info("inbox file submitted",
		logging.String("file", filepath.Base(path)),
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldEventType, "watch_submitted"),
	)
}
