package transcription

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"captioner/internal/logging"
)

// Model owns the speech-to-text engine shared by all transcription jobs.
//
// The first Get pays the one-time load cost; concurrent callers block until it
// finishes. A failed load is not cached, so the next Get retries it.
type Model struct {
	load   Loader
	logger *slog.Logger

	mu     sync.Mutex
	engine Engine
}

// NewModel wraps loader in a lazily-initialized model.
func NewModel(loader Loader, logger *slog.Logger) *Model {
	return &Model{load: loader, logger: logging.NewComponentLogger(logger, "transcription-model")}
}

// Preloaded returns a model that is already loaded with engine.
func Preloaded(engine Engine) *Model {
	return &Model{engine: engine, logger: logging.NewNop()}
}

// Get returns the loaded engine, loading it on first use.
func (m *Model) Get(ctx context.Context) (Engine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engine != nil {
		return m.engine, nil
	}
	if m.load == nil {
		return nil, errors.New("no transcription engine configured")
	}

	started := time.Now()
	logger := logging.WithContext(ctx, m.logger)
	logger.Info("loading transcription model", logging.String(logging.FieldEventType, "model_load_start"))
	engine, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if engine == nil {
		return nil, errors.New("transcription loader returned no engine")
	}
	m.engine = engine
	logger.Info("transcription model loaded",
		logging.String("engine", engine.Name()),
		logging.String("model", engine.Model()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "model_load_complete"),
	)
	return engine, nil
}

// Loaded reports whether the engine has been initialized.
func (m *Model) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine != nil
}
