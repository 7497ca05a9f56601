package transcription

import (
	"context"
	"encoding/json"

	"captioner/internal/subtitles"
)

// Output is the structured result of a single transcription run.
type Output struct {
	Engine           string
	Model            string
	Language         string
	LanguageDetected bool
	Text             string
	Segments         []subtitles.Segment
	// Raw holds the engine's native response for the transcript record.
	Raw json.RawMessage
}

// Engine performs speech-to-text on a prepared audio file. An empty language
// asks the engine to detect it.
type Engine interface {
	Name() string
	Model() string
	Transcribe(ctx context.Context, audioPath, language string) (Output, error)
}

// Loader prepares an engine for use. It may be expensive (model download,
// runtime environment resolution) and is invoked through a Model.
type Loader func(ctx context.Context) (Engine, error)
