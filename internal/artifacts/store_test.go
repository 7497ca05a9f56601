package artifacts_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"captioner/internal/artifacts"
	"captioner/internal/services"
	"captioner/internal/subtitles"
)

func TestWriteAndLoadRecord(t *testing.T) {
	store := artifacts.NewStore(t.TempDir())
	record := artifacts.Record{
		JobID:            "job-1",
		Engine:           "whisperx",
		Model:            "turbo",
		Language:         "en",
		LanguageDetected: true,
		Text:             "hello world",
		Segments:         []subtitles.Segment{{Start: 0, End: 1.5, Text: "hello world"}},
		EngineOutput:     json.RawMessage(`{"language":"en"}`),
	}
	path, err := store.WriteRecord(record)
	if err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if path != store.TranscriptPath("job-1") {
		t.Fatalf("unexpected path %q", path)
	}

	loaded, err := store.LoadRecord("job-1")
	if err != nil {
		t.Fatalf("LoadRecord: %v", err)
	}
	if loaded.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be stamped")
	}
	if !loaded.LanguageDetected || loaded.Language != "en" || len(loaded.Segments) != 1 {
		t.Fatalf("unexpected record: %+v", loaded)
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, loaded.EngineOutput); err != nil {
		t.Fatalf("engine output is not valid JSON: %v", err)
	}
	if compact.String() != `{"language":"en"}` {
		t.Fatalf("engine output not preserved: %s", loaded.EngineOutput)
	}
}

func TestLoadRecordMissing(t *testing.T) {
	store := artifacts.NewStore(t.TempDir())
	_, err := store.LoadRecord("nope")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadRecordCorrupt(t *testing.T) {
	store := artifacts.NewStore(t.TempDir())
	if err := os.WriteFile(store.TranscriptPath("bad"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.LoadRecord("bad"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for corrupt record, got %v", err)
	}
}

func TestWriteSubtitle(t *testing.T) {
	store := artifacts.NewStore(t.TempDir())
	id := artifacts.TranslationID("job-1", "fr")
	if id != "job-1_fr" {
		t.Fatalf("unexpected translation id %q", id)
	}
	if _, err := store.WriteSubtitle(id, []subtitles.Segment{{Start: 1, End: 2, Text: "bonjour"}}); err != nil {
		t.Fatalf("WriteSubtitle: %v", err)
	}
	data, err := store.ReadSubtitle(id)
	if err != nil {
		t.Fatalf("ReadSubtitle: %v", err)
	}
	if !strings.HasPrefix(string(data), "1\n00:00:01,000 --> 00:00:02,000\nbonjour") {
		t.Fatalf("unexpected subtitle content %q", data)
	}
	if _, err := store.ReadSubtitle("job-2"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"abc", "3f2a-11_en", "x.y"} {
		if err := artifacts.ValidateID(id); err != nil {
			t.Fatalf("ValidateID(%q) unexpected error: %v", id, err)
		}
	}
	for _, id := range []string{"", " a", "../etc", "a/b", `a\b`, ".hidden", "a..b"} {
		if err := artifacts.ValidateID(id); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ValidateID(%q) expected validation error, got %v", id, err)
		}
	}
}
