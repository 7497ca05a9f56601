package translation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"captioner/internal/artifacts"
	"captioner/internal/language"
	"captioner/internal/logging"
	"captioner/internal/services"
	"captioner/internal/subtitles"
)

const stageName = "translate"

// Translator renders text in a target language.
type Translator interface {
	Name() string
	Translate(ctx context.Context, text, target string) (string, error)
}

// HealthChecker is implemented by backends that can verify their credentials.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ProgressFunc receives the number of translated segments out of total.
type ProgressFunc func(done, total int)

// Result describes a written translation artifact.
type Result struct {
	ID           string
	SourceID     string
	Language     string
	SubtitlePath string
	Segments     []subtitles.Segment
}

// Adapter translates stored transcripts.
type Adapter struct {
	store      *artifacts.Store
	translator Translator
	logger     *slog.Logger
}

// NewAdapter builds an adapter writing into store.
func NewAdapter(store *artifacts.Store, translator Translator, logger *slog.Logger) *Adapter {
	return &Adapter{store: store, translator: translator, logger: logging.NewComponentLogger(logger, "translator")}
}

// Translator returns the configured backend.
func (a *Adapter) Translator() Translator {
	return a.translator
}

// Translate renders the transcript of sourceID in target. A missing transcript
// is services.ErrNotFound; any segment failure aborts with
// services.ErrTranslation and nothing is written.
func (a *Adapter) Translate(ctx context.Context, sourceID, target string, progress ProgressFunc) (Result, error) {
	lang, err := language.Canonical(target)
	if err != nil {
		return Result{}, services.Wrap(services.ErrValidation, stageName, "target language", "", err)
	}
	result := Result{ID: artifacts.TranslationID(sourceID, lang), SourceID: sourceID, Language: lang}

	record, err := a.store.LoadRecord(sourceID)
	if err != nil {
		return result, err
	}
	if a.translator == nil {
		return result, services.Wrap(services.ErrConfiguration, stageName, "translate", "no translation backend configured", nil)
	}

	started := time.Now()
	total := len(record.Segments)
	translated := make([]subtitles.Segment, 0, total)
	for i, seg := range record.Segments {
		if err := ctx.Err(); err != nil {
			return result, services.Wrap(services.ErrTranslation, stageName, "translate", "", err)
		}
		text, err := a.translator.Translate(ctx, seg.Text, lang)
		if err != nil {
			return result, wrapSegmentError(i, total, err)
		}
		translated = append(translated, subtitles.Segment{Start: seg.Start, End: seg.End, Text: text})
		if progress != nil {
			progress(i+1, total)
		}
	}

	path, err := a.store.WriteSubtitle(result.ID, translated)
	if err != nil {
		return result, err
	}
	result.SubtitlePath = path
	result.Segments = translated

	logging.WithContext(ctx, a.logger).Info("translation complete",
		logging.String("source_id", sourceID),
		logging.String("language", lang),
		logging.String("backend", a.translator.Name()),
		logging.Int("segments", total),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "translation_complete"),
	)
	return result, nil
}

func wrapSegmentError(index, total int, err error) error {
	return services.Wrap(services.ErrTranslation, stageName, "translate segment", fmt.Sprintf("segment %d of %d", index+1, total), err)
}
