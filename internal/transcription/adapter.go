package transcription

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"captioner/internal/logging"
	"captioner/internal/services"
)

const stageName = "transcribe"

// Adapter runs transcription jobs against the shared model.
type Adapter struct {
	model  *Model
	logger *slog.Logger
}

// NewAdapter constructs an adapter over model.
func NewAdapter(model *Model, logger *slog.Logger) *Adapter {
	return &Adapter{model: model, logger: logging.NewComponentLogger(logger, "transcriber")}
}

// Model exposes the underlying model for readiness reporting.
func (a *Adapter) Model() *Model {
	return a.model
}

// Transcribe converts audioPath into timed segments. language is an optional
// hint; without one the engine's detected language is reported and
// Output.LanguageDetected is set.
func (a *Adapter) Transcribe(ctx context.Context, audioPath, language string) (Output, error) {
	language = strings.TrimSpace(language)
	engine, err := a.model.Get(ctx)
	if err != nil {
		return Output{}, wrapEngineError("load model", err)
	}

	started := time.Now()
	out, err := engine.Transcribe(ctx, audioPath, language)
	if err != nil {
		return Output{}, wrapEngineError(engine.Name(), err)
	}
	if out.Engine == "" {
		out.Engine = engine.Name()
	}
	if out.Model == "" {
		out.Model = engine.Model()
	}
	if language == "" {
		out.LanguageDetected = true
	} else {
		out.LanguageDetected = false
		if out.Language == "" {
			out.Language = language
		}
	}

	logging.WithContext(ctx, a.logger).Info("transcription complete",
		logging.String("engine", out.Engine),
		logging.String("language", out.Language),
		logging.Bool("language_detected", out.LanguageDetected),
		logging.Int("segments", len(out.Segments)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcription_complete"),
	)
	return out, nil
}

func wrapEngineError(op string, err error) error {
	if errors.Is(err, services.ErrTranscription) {
		return err
	}
	return services.Wrap(services.ErrTranscription, stageName, op, "", err)
}
