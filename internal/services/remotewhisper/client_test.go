package remotewhisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"captioner/internal/services"
)

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribeVerboseJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.FormValue("response_format") != "verbose_json" || r.FormValue("language") != "de" {
			t.Errorf("unexpected form %v", r.MultipartForm.Value)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			if string(data) != "RIFF" {
				t.Errorf("unexpected upload %q", data)
			}
		}
		_, _ = io.WriteString(w, `{"text":"Hallo Welt","language":"german","segments":[{"start":0,"end":1.2,"text":" Hallo Welt "}]}`)
	}))
	defer server.Close()

	client := New(Config{URL: server.URL, APIKey: "secret"})
	out, err := client.Transcribe(context.Background(), writeAudio(t), "de-DE")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Language != "de" {
		t.Fatalf("expected canonical language de, got %q", out.Language)
	}
	if len(out.Segments) != 1 || out.Segments[0].Text != "Hallo Welt" || out.Segments[0].End != 1.2 {
		t.Fatalf("unexpected segments %+v", out.Segments)
	}
	if out.Model != DefaultModel || len(out.Raw) == 0 {
		t.Fatalf("unexpected metadata %+v", out)
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := New(Config{URL: server.URL}).Transcribe(context.Background(), writeAudio(t), "")
	if !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected transcription error, got %v", err)
	}
}

func TestLoadRequiresURL(t *testing.T) {
	if _, err := New(Config{}).Load(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
