package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"captioner/internal/api"
	"captioner/internal/artifacts"
	"captioner/internal/backends"
	"captioner/internal/catalog"
	"captioner/internal/config"
	"captioner/internal/deps"
	"captioner/internal/jobs"
	"captioner/internal/logging"
	"captioner/internal/media"
	"captioner/internal/notifications"
	"captioner/internal/services"
	"captioner/internal/transcription"
	"captioner/internal/translation"
	"captioner/internal/watch"
)

// Options customizes daemon construction. Zero values use the configuration.
type Options struct {
	Logger *slog.Logger
	// Engine replaces the configured transcription engine.
	Engine *backends.Engine
	// Translator replaces the configured translation backend.
	Translator translation.Translator
	// FFmpegRunner replaces how ffmpeg is executed.
	FFmpegRunner services.CommandRunner
	// Notifier replaces the configured ntfy notifier.
	Notifier jobs.Notifier
}

// Daemon owns every long-lived component and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	catalog    *catalog.Store
	model      *transcription.Model
	engine     backends.Engine
	translator translation.Translator
	notifier   jobs.Notifier
	jobs       *jobs.Orchestrator
	api        *api.Server
	watcher    *watch.Watcher

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

// New constructs a daemon with initialized dependencies. Nothing listens or
// loads until Start.
func New(cfg *config.Config, opts Options) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires config")
	}
	logger := logging.NewComponentLogger(opts.Logger, "daemon")

	var engine backends.Engine
	if opts.Engine != nil {
		engine = *opts.Engine
	} else {
		resolved, err := backends.TranscriptionEngine(cfg)
		if err != nil {
			return nil, err
		}
		engine = resolved
	}
	translator := opts.Translator
	if translator == nil {
		resolved, err := backends.Translator(cfg)
		if err != nil {
			return nil, err
		}
		translator = resolved
	}

	notifier := opts.Notifier
	if notifier == nil {
		if svc := notifications.NewService(cfg); svc.Enabled() {
			notifier = svc
		}
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logger,
		engine:     engine,
		translator: translator,
		notifier:   notifier,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
	}

	var (
		jobCatalog jobs.Catalog
		lister     api.ArtifactLister
	)
	if cfg.Catalog.Enabled {
		store, err := catalog.Open(cfg.Catalog.Path)
		if err != nil {
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		d.catalog = store
		jobCatalog = store
		lister = store
	}

	store := artifacts.NewStore(cfg.Paths.ResultsDir)
	normalizer := media.NewNormalizer(media.Config{
		FFmpegBinary: cfg.Media.FFmpegBinary,
		WorkDir:      cfg.Paths.UploadDir,
		Timeout:      time.Duration(cfg.Media.TimeoutSeconds) * time.Second,
	}, opts.Logger)
	if opts.FFmpegRunner != nil {
		normalizer.WithCommandRunner(opts.FFmpegRunner)
	}
	d.model = transcription.NewModel(engine.Loader, opts.Logger)

	d.jobs = jobs.New(jobs.Deps{
		Spawner:         jobs.NewSpawner(cfg.Jobs.MaxConcurrent),
		Normalizer:      normalizer,
		Transcriber:     transcription.NewAdapter(d.model, opts.Logger),
		Translator:      translation.NewAdapter(store, translator, opts.Logger),
		Store:           store,
		Catalog:         jobCatalog,
		Notifier:        notifier,
		Logger:          opts.Logger,
		DefaultLanguage: cfg.Transcription.DefaultLanguage,
	})

	server, err := api.New(api.Options{
		Config:  cfg,
		Jobs:    d.jobs,
		Store:   store,
		Catalog: lister,
		Health:  d.Health,
		Logger:  opts.Logger,
	})
	if err != nil {
		d.closeCatalog()
		return nil, err
	}
	d.api = server

	if cfg.Watch.Enabled {
		d.watcher = watch.New(watch.OptionsFromConfig(cfg), d.jobs, opts.Logger)
	}
	return d, nil
}

// Start acquires the daemon lock, then starts the API server and the watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another captioner daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel

	if d.watcher != nil {
		d.bg.Go(func() {
			if err := d.watcher.Run(runCtx); err != nil {
				logging.ErrorWithContext(d.logger, "inbox watcher stopped", "watch_failed", logging.Error(err))
			}
		})
	}

	d.running.Store(true)
	d.logger.Info("captioner daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.Addr()),
		logging.String("engine", d.engine.Name),
		logging.String("translation_backend", d.translator.Name()),
		logging.Bool("watch", d.watcher != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop stops accepting work, waits for running jobs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.Stop()
	d.bg.Wait()
	d.jobs.Wait()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("captioner daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeCatalog()
}

func (d *Daemon) closeCatalog() error {
	if d.catalog == nil {
		return nil
	}
	err := d.catalog.Close()
	d.catalog = nil
	return err
}

// Running reports whether Start succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Addr returns the API listen address while running.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Jobs exposes the orchestrator.
func (d *Daemon) Jobs() *jobs.Orchestrator {
	return d.jobs
}

// LockPath returns the single-instance lock file location.
func (d *Daemon) LockPath() string {
	return d.lockPath
}

// Health reports readiness for the API health endpoint.
func (d *Daemon) Health(_ context.Context) api.Health {
	statuses := deps.CheckBinaries(deps.Requirements(d.cfg))
	reported := make([]api.DependencyStatus, len(statuses))
	for i, dep := range statuses {
		reported[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	status := "ok"
	if !d.running.Load() {
		status = "stopped"
	} else if len(deps.Missing(statuses)) > 0 {
		status = "degraded"
	}
	health := api.Health{
		Status:             status,
		PID:                os.Getpid(),
		Engine:             d.engine.Name,
		Model:              d.engine.Model,
		ModelLoaded:        d.model.Loaded(),
		TranslationBackend: d.translator.Name(),
		Jobs:               d.jobs.Registry().Len(),
		Notifications:      d.notifier != nil,
		Dependencies:       reported,
	}
	if d.catalog != nil {
		health.CatalogPath = d.catalog.Path()
	}
	return health
}
