package jobs_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"captioner/internal/artifacts"
	"captioner/internal/catalog"
	"captioner/internal/jobs"
	"captioner/internal/media"
	"captioner/internal/services"
	"captioner/internal/subtitles"
	"captioner/internal/transcription"
	"captioner/internal/translation"
)

type observed struct {
	progress int
	status   string
}

type fakeNormalizer struct {
	registry *jobs.Registry
	err      error
	seen     observed
	cleaned  bool
}

func (f *fakeNormalizer) Normalize(_ context.Context, path string, kind media.Kind, id string) (media.Normalized, error) {
	v := f.registry.Status(id)
	f.seen = observed{v.Progress, v.Status}
	if f.err != nil {
		return media.Normalized{}, f.err
	}
	return media.Normalized{Source: path, Kind: kind, AudioPath: path + ".wav", Intermediate: kind.IsVideo()}, nil
}

func (f *fakeNormalizer) Cleanup(context.Context, media.Normalized) { f.cleaned = true }

type fakeTranscriber struct {
	registry *jobs.Registry
	id       string
	seen     observed
	gotLang  string
	err      error
	panics   bool
}

func (f *fakeTranscriber) Transcribe(_ context.Context, _ string, lang string) (transcription.Output, error) {
	if f.panics {
		panic("engine exploded")
	}
	v := f.registry.Status(f.id)
	f.seen = observed{v.Progress, v.Status}
	f.gotLang = lang
	if f.err != nil {
		return transcription.Output{}, f.err
	}
	detected := lang == ""
	if detected {
		lang = "en"
	}
	return transcription.Output{
		Engine:           "stub",
		Language:         lang,
		LanguageDetected: detected,
		Text:             "hello world",
		Segments: []subtitles.Segment{
			{Start: 0, End: 1, Text: "hello"},
			{Start: 1, End: 2.5, Text: "world"},
		},
	}, nil
}

type memCatalog struct {
	mu      sync.Mutex
	entries map[string]catalog.Entry
}

func (m *memCatalog) Upsert(_ context.Context, e catalog.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entries == nil {
		m.entries = map[string]catalog.Entry{}
	}
	m.entries[e.ID] = e
	return nil
}

type memNotifier struct {
	mu    sync.Mutex
	views []jobs.View
	err   error
}

func (m *memNotifier) JobFinished(_ context.Context, v jobs.View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views = append(m.views, v)
	return m.err
}

type harness struct {
	orch        *jobs.Orchestrator
	registry    *jobs.Registry
	store       *artifacts.Store
	normalizer  *fakeNormalizer
	transcriber *fakeTranscriber
	catalog     *memCatalog
	notifier    *memNotifier
	uploads     string
}

func newHarness(t *testing.T, translator jobs.Translator) *harness {
	t.Helper()
	registry := jobs.NewRegistry()
	store := artifacts.NewStore(t.TempDir())
	h := &harness{
		registry:    registry,
		store:       store,
		normalizer:  &fakeNormalizer{registry: registry},
		transcriber: &fakeTranscriber{registry: registry},
		catalog:     &memCatalog{},
		notifier:    &memNotifier{},
		uploads:     t.TempDir(),
	}
	h.orch = jobs.New(jobs.Deps{
		Registry:    registry,
		Spawner:     &jobs.Unbounded{},
		Normalizer:  h.normalizer,
		Transcriber: h.transcriber,
		Translator:  translator,
		Store:       store,
		Catalog:     h.catalog,
		Notifier:    h.notifier,
	})
	return h
}

func (h *harness) upload(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(h.uploads, name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSubmitTranscriptionVideo(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.id = "job-1"

	id, err := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{ID: "job-1", Path: h.upload(t, "job-1.mp4")})
	if err != nil {
		t.Fatalf("SubmitTranscription: %v", err)
	}
	h.orch.Wait()

	if h.normalizer.seen != (observed{20, jobs.StatusExtractingAudio}) {
		t.Fatalf("normalizer saw %+v", h.normalizer.seen)
	}
	if h.transcriber.seen != (observed{40, jobs.StatusTranscribing}) {
		t.Fatalf("transcriber saw %+v", h.transcriber.seen)
	}
	if !h.normalizer.cleaned {
		t.Fatal("expected intermediate cleanup after success")
	}

	v := h.orch.Status(id)
	if v.State != jobs.StateSuccess || v.Progress != 100 || v.Status != jobs.StatusCompleted {
		t.Fatalf("unexpected final view %+v", v)
	}
	if v.Result == nil || len(v.Result.Segments) != 2 || !v.Result.LanguageDetected || v.Result.Language != "en" {
		t.Fatalf("unexpected result %+v", v.Result)
	}

	data, err := os.ReadFile(h.store.SubtitlePath(id))
	if err != nil {
		t.Fatalf("read subtitle: %v", err)
	}
	if !strings.HasPrefix(string(data), "1\n00:00:00,000 --> 00:00:01,000\nhello\n\n") {
		t.Fatalf("unexpected subtitle %q", data)
	}
	record, err := h.store.LoadRecord(id)
	if err != nil || record.Text != "hello world" {
		t.Fatalf("LoadRecord = %+v, %v", record, err)
	}
	if _, ok := h.catalog.entries[id]; !ok {
		t.Fatal("expected catalog entry")
	}
}

func TestSubmitTranscriptionAudioWithLanguage(t *testing.T) {
	h := newHarness(t, nil)
	h.transcriber.id = "job-2"

	id, err := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{ID: "job-2", Path: h.upload(t, "job-2.mp3"), Language: "FR"})
	if err != nil {
		t.Fatalf("SubmitTranscription: %v", err)
	}
	h.orch.Wait()

	if h.normalizer.seen != (observed{10, jobs.StatusProcessingAudio}) {
		t.Fatalf("audio inputs skip the extraction checkpoint, saw %+v", h.normalizer.seen)
	}
	if h.transcriber.gotLang != "fr" {
		t.Fatalf("expected canonical hint, got %q", h.transcriber.gotLang)
	}
	v := h.orch.Status(id)
	if v.State != jobs.StateSuccess || v.Result.LanguageDetected || v.Result.Language != "fr" {
		t.Fatalf("unexpected view %+v", v)
	}
}

func TestSubmitTranscriptionGeneratesID(t *testing.T) {
	h := newHarness(t, nil)
	id, err := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{Path: h.upload(t, "clip.wav")})
	if err != nil {
		t.Fatalf("SubmitTranscription: %v", err)
	}
	h.orch.Wait()
	if len(id) != 36 {
		t.Fatalf("expected a uuid, got %q", id)
	}
}

func TestSubmitTranscriptionRejectsBadInput(t *testing.T) {
	h := newHarness(t, nil)
	cases := []jobs.TranscriptionRequest{
		{Path: ""},
		{Path: "notes.txt"},
		{Path: "clip.mp3", Language: "??"},
		{Path: "clip.mp3", ID: "../escape"},
	}
	for _, req := range cases {
		if _, err := h.orch.SubmitTranscription(context.Background(), req); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("request %+v: expected validation error, got %v", req, err)
		}
	}
	if h.registry.Len() != 0 {
		t.Fatal("rejected submissions must not create records")
	}
}

func TestTranscriptionFailures(t *testing.T) {
	t.Run("normalizer", func(t *testing.T) {
		h := newHarness(t, nil)
		h.normalizer.err = services.Wrap(services.ErrNormalization, "normalize", "ffmpeg", "moov atom not found", errors.New("exit status 1"))
		id, _ := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{Path: h.upload(t, "a.mov")})
		h.orch.Wait()
		v := h.orch.Status(id)
		if v.State != jobs.StateFailure || v.Progress != 0 || !strings.HasPrefix(v.Status, "Error: ") || !strings.Contains(v.Status, "moov atom") {
			t.Fatalf("unexpected view %+v", v)
		}
		if _, err := os.Stat(h.store.SubtitlePath(id)); !os.IsNotExist(err) {
			t.Fatal("failed jobs must not write subtitles")
		}
	})

	t.Run("transcriber", func(t *testing.T) {
		h := newHarness(t, nil)
		h.transcriber.err = services.Wrap(services.ErrTranscription, "transcribe", "", "model crashed", nil)
		id, _ := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{Path: h.upload(t, "a.wav")})
		h.orch.Wait()
		if v := h.orch.Status(id); v.State != jobs.StateFailure || !strings.Contains(v.Status, "model crashed") {
			t.Fatalf("unexpected view %+v", v)
		}
		if h.normalizer.cleaned {
			t.Fatal("cleanup only runs after success")
		}
	})

	t.Run("panic", func(t *testing.T) {
		h := newHarness(t, nil)
		h.transcriber.panics = true
		id, _ := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{Path: h.upload(t, "a.wav")})
		h.orch.Wait()
		if v := h.orch.Status(id); v.State != jobs.StateFailure || !strings.Contains(v.Status, "engine exploded") {
			t.Fatalf("panic should become a failure, got %+v", v)
		}
	})
}

func TestNotifierSeesTerminalViews(t *testing.T) {
	h := newHarness(t, nil)
	h.notifier.err = errors.New("ntfy down")

	ok, err := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{ID: "ok", Path: h.upload(t, "ok.wav")})
	if err != nil {
		t.Fatalf("SubmitTranscription: %v", err)
	}
	h.orch.Wait()
	h.transcriber.err = services.Wrap(services.ErrTranscription, "transcribe", "", "model crashed", nil)
	bad, err := h.orch.SubmitTranscription(context.Background(), jobs.TranscriptionRequest{ID: "bad", Path: h.upload(t, "bad.wav")})
	if err != nil {
		t.Fatalf("SubmitTranscription: %v", err)
	}
	h.orch.Wait()

	if len(h.notifier.views) != 2 {
		t.Fatalf("expected two notifications, got %+v", h.notifier.views)
	}
	if v := h.notifier.views[0]; v.ID != ok || v.State != jobs.StateSuccess || v.Result == nil {
		t.Fatalf("unexpected success notification %+v", v)
	}
	if v := h.notifier.views[1]; v.ID != bad || v.State != jobs.StateFailure {
		t.Fatalf("unexpected failure notification %+v", v)
	}
	if v := h.orch.Status(ok); v.State != jobs.StateSuccess {
		t.Fatalf("notification errors must not change the outcome, got %+v", v)
	}
}

type stubTranslator struct{ fail bool }

func (s stubTranslator) Name() string { return "stub" }

func (s stubTranslator) Translate(_ context.Context, text, target string) (string, error) {
	if s.fail {
		return "", errors.New("quota exceeded")
	}
	return target + ":" + text, nil
}

func seedTranscript(t *testing.T, store *artifacts.Store, id string) {
	t.Helper()
	if _, err := store.WriteRecord(artifacts.Record{JobID: id, Segments: []subtitles.Segment{
		{Start: 0, End: 1, Text: "one"},
		{Start: 1, End: 2, Text: "two"},
	}}); err != nil {
		t.Fatal(err)
	}
}

func TestSubmitTranslation(t *testing.T) {
	registry := jobs.NewRegistry()
	store := artifacts.NewStore(t.TempDir())
	seedTranscript(t, store, "abc")
	orch := jobs.New(jobs.Deps{
		Registry:   registry,
		Store:      store,
		Translator: translation.NewAdapter(store, stubTranslator{}, nil),
	})

	id, err := orch.SubmitTranslation(context.Background(), "abc", "DE")
	if err != nil {
		t.Fatalf("SubmitTranslation: %v", err)
	}
	if id != "abc_de" {
		t.Fatalf("unexpected translation id %q", id)
	}
	orch.Wait()

	v := orch.Status(id)
	if v.State != jobs.StateSuccess || v.Status != jobs.StatusTranslationDone || v.Progress != 100 {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Result.SourceID != "abc" || v.Result.Segments[1].Text != "de:two" {
		t.Fatalf("unexpected result %+v", v.Result)
	}
}

func TestSubmitTranslationFailures(t *testing.T) {
	store := artifacts.NewStore(t.TempDir())
	seedTranscript(t, store, "abc")

	orch := jobs.New(jobs.Deps{Store: store, Translator: translation.NewAdapter(store, stubTranslator{fail: true}, nil)})
	id, err := orch.SubmitTranslation(context.Background(), "abc", "fr")
	if err != nil {
		t.Fatalf("SubmitTranslation: %v", err)
	}
	orch.Wait()
	if v := orch.Status(id); v.State != jobs.StateFailure || !strings.Contains(v.Status, "quota exceeded") {
		t.Fatalf("unexpected view %+v", v)
	}

	missing, _ := orch.SubmitTranslation(context.Background(), "nope", "fr")
	orch.Wait()
	if v := orch.Status(missing); v.State != jobs.StateFailure || !strings.Contains(v.Status, "not found") {
		t.Fatalf("missing transcript should fail with not found, got %+v", v)
	}

	for _, args := range [][2]string{{"", "fr"}, {"abc", ""}, {"abc", "!!"}} {
		if _, err := orch.SubmitTranslation(context.Background(), args[0], args[1]); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("args %v: expected validation error, got %v", args, err)
		}
	}
}

type gatedTranslator struct {
	mu    sync.Mutex
	gates []chan struct{}
	calls chan int
}

func (g *gatedTranslator) Translate(ctx context.Context, sourceID, target string, progress translation.ProgressFunc) (translation.Result, error) {
	g.mu.Lock()
	gate := make(chan struct{})
	g.gates = append(g.gates, gate)
	n := len(g.gates)
	g.mu.Unlock()
	g.calls <- n
	<-gate
	progress(1, 1)
	return translation.Result{ID: sourceID + "_" + target, Language: target, SubtitlePath: fmt.Sprintf("run-%d", n)}, nil
}

func (g *gatedTranslator) release(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	close(g.gates[n-1])
}

func TestTranslationResubmissionLastWins(t *testing.T) {
	gated := &gatedTranslator{calls: make(chan int, 2)}
	orch := jobs.New(jobs.Deps{Translator: gated})

	id, _ := orch.SubmitTranslation(context.Background(), "abc", "fr")
	<-gated.calls
	if _, err := orch.SubmitTranslation(context.Background(), "abc", "fr"); err != nil {
		t.Fatal(err)
	}
	<-gated.calls

	updates, stop := orch.Registry().Watch(id)
	defer stop()
	gated.release(2)
	for v := range updates {
		if v.State == jobs.StateSuccess {
			break
		}
	}
	gated.release(1)
	orch.Wait()

	v := orch.Status(id)
	if v.Result.SubtitlePath != "run-2" {
		t.Fatalf("superseded run overwrote the record: %+v", v.Result)
	}
}
