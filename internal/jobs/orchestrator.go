package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"captioner/internal/artifacts"
	"captioner/internal/catalog"
	"captioner/internal/language"
	"captioner/internal/logging"
	"captioner/internal/media"
	"captioner/internal/services"
	"captioner/internal/transcription"
	"captioner/internal/translation"
)

// Normalizer prepares uploaded media for transcription.
type Normalizer interface {
	Normalize(ctx context.Context, path string, kind media.Kind, id string) (media.Normalized, error)
	Cleanup(ctx context.Context, res media.Normalized)
}

// Transcriber converts audio into timed text.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (transcription.Output, error)
}

// Translator renders a stored transcript in another language.
type Translator interface {
	Translate(ctx context.Context, sourceID, target string, progress translation.ProgressFunc) (translation.Result, error)
}

// Catalog records finished artifacts.
type Catalog interface {
	Upsert(ctx context.Context, entry catalog.Entry) error
}

// Notifier is told about jobs that reached a terminal state.
type Notifier interface {
	JobFinished(ctx context.Context, view View) error
}

// Deps wires the orchestrator's collaborators. Catalog, Translator, and
// Notifier are optional.
type Deps struct {
	Registry    *Registry
	Spawner     Spawner
	Normalizer  Normalizer
	Transcriber Transcriber
	Translator  Translator
	Store       *artifacts.Store
	Catalog     Catalog
	Notifier    Notifier
	Logger      *slog.Logger

	// DefaultLanguage is used when a request carries no language hint.
	DefaultLanguage string
}

// TranscriptionRequest describes an uploaded file to transcribe.
type TranscriptionRequest struct {
	// ID names the job and its artifacts. Empty generates a fresh UUID.
	ID       string
	Path     string
	Language string
}

// Orchestrator accepts job submissions and runs them in the background.
type Orchestrator struct {
	registry    *Registry
	spawner     Spawner
	normalizer  Normalizer
	transcriber Transcriber
	translator  Translator
	store       *artifacts.Store
	catalog     Catalog
	notifier    Notifier
	logger      *slog.Logger
	defaultLang string
}

// New constructs an orchestrator. A nil Registry or Spawner gets a default.
func New(deps Deps) *Orchestrator {
	if deps.Registry == nil {
		deps.Registry = NewRegistry()
	}
	if deps.Spawner == nil {
		deps.Spawner = &Unbounded{}
	}
	return &Orchestrator{
		registry:    deps.Registry,
		spawner:     deps.Spawner,
		normalizer:  deps.Normalizer,
		transcriber: deps.Transcriber,
		translator:  deps.Translator,
		store:       deps.Store,
		catalog:     deps.Catalog,
		notifier:    deps.Notifier,
		logger:      logging.NewComponentLogger(deps.Logger, "orchestrator"),
		defaultLang: strings.TrimSpace(deps.DefaultLanguage),
	}
}

// NewID returns a fresh job identifier.
func NewID() string {
	return uuid.NewString()
}

// Registry exposes the status registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Wait blocks until all scheduled jobs have finished.
func (o *Orchestrator) Wait() {
	o.spawner.Wait()
}

// Status returns the current view of id, or the not-found view.
func (o *Orchestrator) Status(id string) View {
	return o.registry.Status(id)
}

// List returns every tracked job.
func (o *Orchestrator) List() []View {
	return o.registry.List()
}

// Watch streams status changes for id; see Registry.Watch.
func (o *Orchestrator) Watch(id string) (<-chan View, func()) {
	return o.registry.Watch(id)
}

// SubmitTranscription registers a transcription job and schedules it. It
// returns once the job is PENDING; the work happens in the background.
func (o *Orchestrator) SubmitTranscription(ctx context.Context, req TranscriptionRequest) (string, error) {
	if strings.TrimSpace(req.Path) == "" {
		return "", services.Wrap(services.ErrValidation, "submit", "transcription", "file path required", nil)
	}
	if media.KindForPath(req.Path) == media.KindUnknown {
		return "", services.Wrap(services.ErrValidation, "submit", "transcription", "file type not allowed", nil)
	}
	if req.Language = strings.TrimSpace(req.Language); req.Language == "" {
		req.Language = o.defaultLang
	}
	if req.Language != "" {
		canonical, err := language.Canonical(req.Language)
		if err != nil {
			return "", services.Wrap(services.ErrValidation, "submit", "transcription", "invalid language", err)
		}
		req.Language = canonical
	}
	if req.ID == "" {
		req.ID = NewID()
	}
	if err := artifacts.ValidateID(req.ID); err != nil {
		return "", err
	}

	run := o.registry.Put(req.ID, KindTranscription, StatusUploaded, 5)
	jobCtx := o.jobContext(ctx, req.ID, KindTranscription)
	logging.WithContext(jobCtx, o.logger).Info("transcription submitted",
		logging.String("file", req.Path),
		logging.String("language", req.Language),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	o.spawner.Go(func() { o.runTranscription(jobCtx, req, run) })
	return req.ID, nil
}

// SubmitTranslation schedules a translation of sourceID's transcript. The job
// id is "<sourceID>_<lang>"; resubmitting the same pair replaces the earlier
// record and the latest submission owns it.
func (o *Orchestrator) SubmitTranslation(ctx context.Context, sourceID, target string) (string, error) {
	sourceID = strings.TrimSpace(sourceID)
	if sourceID == "" || strings.TrimSpace(target) == "" {
		return "", services.Wrap(services.ErrValidation, "submit", "translation", "missing file_id or target_language", nil)
	}
	if err := artifacts.ValidateID(sourceID); err != nil {
		return "", err
	}
	lang, err := language.Canonical(target)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "submit", "translation", "invalid target language", err)
	}
	id := artifacts.TranslationID(sourceID, lang)

	run := o.registry.Put(id, KindTranslation, StatusTranslationStarted, 10)
	jobCtx := o.jobContext(ctx, id, KindTranslation)
	logging.WithContext(jobCtx, o.logger).Info("translation submitted",
		logging.String("source_id", sourceID),
		logging.String("language", lang),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	o.spawner.Go(func() { o.runTranslation(jobCtx, id, sourceID, lang, run) })
	return id, nil
}

// jobContext detaches the job from the submitting request's lifetime while
// keeping its values (request id) for log correlation.
func (o *Orchestrator) jobContext(ctx context.Context, id string, kind Kind) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithJobID(context.WithoutCancel(ctx), id)
	return services.WithJobKind(ctx, string(kind))
}

func (o *Orchestrator) runTranscription(ctx context.Context, req TranscriptionRequest, run uint64) {
	started := time.Now()
	defer o.recoverUnit(ctx, req.ID, run)
	sampler := logging.NewProgressSampler(0)
	advance := func(progress int, status string) {
		o.advance(ctx, req.ID, run, progress, status, sampler)
	}

	advance(10, StatusProcessingAudio)
	kind := media.KindForPath(req.Path)
	if kind.IsVideo() {
		advance(20, StatusExtractingAudio)
	}
	normalized, err := o.normalizer.Normalize(services.WithStage(ctx, "normalize"), req.Path, kind, req.ID)
	if err != nil {
		o.fail(ctx, req.ID, run, "normalize", err)
		return
	}

	advance(40, StatusTranscribing)
	out, err := o.transcriber.Transcribe(services.WithStage(ctx, "transcribe"), normalized.AudioPath, req.Language)
	if err != nil {
		o.fail(ctx, req.ID, run, "transcribe", err)
		return
	}

	advance(80, StatusWritingSubtitles)
	subtitlePath, err := o.store.WriteSubtitle(req.ID, out.Segments)
	if err != nil {
		o.fail(ctx, req.ID, run, "write subtitles", err)
		return
	}
	transcriptPath, err := o.store.WriteRecord(artifacts.Record{
		JobID:            req.ID,
		Engine:           out.Engine,
		Model:            out.Model,
		Language:         out.Language,
		LanguageDetected: out.LanguageDetected,
		Text:             out.Text,
		Segments:         out.Segments,
		EngineOutput:     out.Raw,
	})
	if err != nil {
		o.fail(ctx, req.ID, run, "write transcript", err)
		return
	}
	o.normalizer.Cleanup(ctx, normalized)

	result := &Result{
		ArtifactID:       req.ID,
		SubtitlePath:     subtitlePath,
		TranscriptPath:   transcriptPath,
		Language:         out.Language,
		LanguageDetected: out.LanguageDetected,
		Segments:         out.Segments,
	}
	o.record(ctx, catalog.Entry{
		ID:               req.ID,
		Kind:             catalog.KindTranscript,
		Language:         out.Language,
		LanguageDetected: out.LanguageDetected,
		Engine:           out.Engine,
		SubtitlePath:     subtitlePath,
		TranscriptPath:   transcriptPath,
		SegmentCount:     len(out.Segments),
	})
	if !o.registry.Succeed(req.ID, run, StatusCompleted, result) {
		return
	}
	o.logComplete(ctx, started, len(out.Segments))
	o.notify(ctx, req.ID)
}

func (o *Orchestrator) runTranslation(ctx context.Context, id, sourceID, lang string, run uint64) {
	started := time.Now()
	defer o.recoverUnit(ctx, id, run)
	if o.translator == nil {
		o.fail(ctx, id, run, "translate", services.Wrap(services.ErrConfiguration, "translate", "", "no translation backend configured", nil))
		return
	}
	sampler := logging.NewProgressSampler(0)

	o.advance(ctx, id, run, 10, StatusTranslationStarted, sampler)
	o.advance(ctx, id, run, 50, StatusTranslating, sampler)
	progress := func(done, total int) {
		if total <= 0 {
			return
		}
		o.advance(ctx, id, run, 50+done*45/total, StatusTranslating, sampler)
	}

	res, err := o.translator.Translate(services.WithStage(ctx, "translate"), sourceID, lang, progress)
	if err != nil {
		o.fail(ctx, id, run, "translate", err)
		return
	}
	result := &Result{
		ArtifactID:   res.ID,
		SourceID:     sourceID,
		SubtitlePath: res.SubtitlePath,
		Language:     res.Language,
		Segments:     res.Segments,
	}
	o.record(ctx, catalog.Entry{
		ID:           res.ID,
		Kind:         catalog.KindTranslation,
		SourceID:     sourceID,
		Language:     res.Language,
		SubtitlePath: res.SubtitlePath,
		SegmentCount: len(res.Segments),
	})
	if !o.registry.Succeed(id, run, StatusTranslationDone, result) {
		return
	}
	o.logComplete(ctx, started, len(res.Segments))
	o.notify(ctx, id)
}

func (o *Orchestrator) advance(ctx context.Context, id string, run uint64, progress int, status string, sampler *logging.ProgressSampler) {
	if !o.registry.Advance(id, run, progress, status) {
		return
	}
	if sampler.ShouldLog(progress, status) {
		logging.WithContext(ctx, o.logger).Info("job progress",
			logging.String("status", status),
			logging.Int(logging.FieldProgressPercent, progress),
			logging.String(logging.FieldEventType, "job_progress"),
		)
	}
}

func (o *Orchestrator) fail(ctx context.Context, id string, run uint64, stage string, err error) {
	message := err.Error()
	if !o.registry.Fail(id, run, message) {
		return
	}
	logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "job failed", "job_failure",
		logging.String(logging.FieldStage, stage),
		logging.String(logging.FieldErrorKind, services.Kind(err)),
		logging.String(logging.FieldErrorHint, failureHint(err)),
		logging.Error(err),
	)
	o.notify(ctx, id)
}

// recoverUnit converts a panic inside a job into a FAILURE record.
func (o *Orchestrator) recoverUnit(ctx context.Context, id string, run uint64) {
	r := recover()
	if r == nil {
		return
	}
	err := fmt.Errorf("internal error: %v", r)
	if o.registry.Fail(id, run, err.Error()) {
		logging.ErrorWithContext(logging.WithContext(ctx, o.logger), "job panicked", "job_failure",
			logging.Error(err),
			logging.String("stack", string(debug.Stack())),
		)
	}
}

// notify hands the job's final view to the notifier. Delivery failures are
// logged and never change the job outcome.
func (o *Orchestrator) notify(ctx context.Context, id string) {
	if o.notifier == nil {
		return
	}
	view := o.registry.Status(id)
	if err := o.notifier.JobFinished(ctx, view); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "job notification failed", "notification_failed",
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "job outcome was not announced"),
			logging.Error(err),
		)
	}
}

func (o *Orchestrator) record(ctx context.Context, entry catalog.Entry) {
	if o.catalog == nil {
		return
	}
	if err := o.catalog.Upsert(ctx, entry); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, o.logger), "failed to catalog artifact", "catalog_write_failed",
			logging.String("artifact_id", entry.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "artifact is not listed by the catalog"),
		)
	}
}

func (o *Orchestrator) logComplete(ctx context.Context, started time.Time, segments int) {
	logging.WithContext(ctx, o.logger).Info("job completed",
		logging.Int("segments", segments),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "job_complete"),
	)
}

func failureHint(err error) string {
	switch services.Kind(err) {
	case "normalization":
		return "check that ffmpeg is installed and the upload is a valid media file"
	case "transcription":
		return "check the transcription engine logs; run 'captioner doctor'"
	case "translation":
		return "check translation backend credentials and availability"
	case "not_found":
		return "the referenced file or transcript does not exist"
	case "configuration":
		return "review the configuration file"
	default:
		return ""
	}
}
