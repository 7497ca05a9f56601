package transcription_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"captioner/internal/services"
	"captioner/internal/subtitles"
	"captioner/internal/transcription"
)

type stubEngine struct {
	out       transcription.Output
	err       error
	gotLang   string
	callCount int
}

func (s *stubEngine) Name() string  { return "stub" }
func (s *stubEngine) Model() string { return "tiny" }

func (s *stubEngine) Transcribe(_ context.Context, _ string, language string) (transcription.Output, error) {
	s.callCount++
	s.gotLang = language
	return s.out, s.err
}

func TestModelLoadsOnce(t *testing.T) {
	var loads atomic.Int32
	engine := &stubEngine{}
	model := transcription.NewModel(func(context.Context) (transcription.Engine, error) {
		loads.Add(1)
		return engine, nil
	}, nil)

	if model.Loaded() {
		t.Fatal("model should start unloaded")
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := model.Get(context.Background()); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := loads.Load(); got != 1 {
		t.Fatalf("expected one load, got %d", got)
	}
	if !model.Loaded() {
		t.Fatal("model should report loaded")
	}
}

func TestModelRetriesFailedLoad(t *testing.T) {
	attempts := 0
	model := transcription.NewModel(func(context.Context) (transcription.Engine, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("download interrupted")
		}
		return &stubEngine{}, nil
	}, nil)

	if _, err := model.Get(context.Background()); err == nil {
		t.Fatal("expected first load to fail")
	}
	if model.Loaded() {
		t.Fatal("failed load must not be cached")
	}
	if _, err := model.Get(context.Background()); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestAdapterDetectedLanguage(t *testing.T) {
	engine := &stubEngine{out: transcription.Output{
		Language: "fr",
		Text:     "bonjour",
		Segments: []subtitles.Segment{{Start: 0, End: 1.5, Text: "bonjour"}},
	}}
	adapter := transcription.NewAdapter(transcription.Preloaded(engine), nil)

	out, err := adapter.Transcribe(context.Background(), "audio.wav", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !out.LanguageDetected || out.Language != "fr" {
		t.Fatalf("expected detected fr, got %+v", out)
	}
	if out.Engine != "stub" || out.Model != "tiny" {
		t.Fatalf("expected engine metadata to be filled, got %q/%q", out.Engine, out.Model)
	}
}

func TestAdapterLanguageHint(t *testing.T) {
	engine := &stubEngine{}
	adapter := transcription.NewAdapter(transcription.Preloaded(engine), nil)

	out, err := adapter.Transcribe(context.Background(), "audio.wav", " de ")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if engine.gotLang != "de" {
		t.Fatalf("engine received hint %q", engine.gotLang)
	}
	if out.LanguageDetected || out.Language != "de" {
		t.Fatalf("expected hinted language, got %+v", out)
	}
}

func TestAdapterWrapsFailures(t *testing.T) {
	engine := &stubEngine{err: errors.New("cuda out of memory")}
	adapter := transcription.NewAdapter(transcription.Preloaded(engine), nil)
	_, err := adapter.Transcribe(context.Background(), "audio.wav", "")
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}

	failing := transcription.NewModel(func(context.Context) (transcription.Engine, error) {
		return nil, errors.New("uvx missing")
	}, nil)
	_, err = transcription.NewAdapter(failing, nil).Transcribe(context.Background(), "audio.wav", "")
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected load failure to be a transcription error, got %v", err)
	}
}
