// Package transcription turns normalized audio into timed text.
//
// An Engine (WhisperX through uvx, or a remote OpenAI-compatible endpoint)
// is owned by a Model, which loads it lazily on first use and shares it
// between jobs. The Adapter is what job workers call: it resolves the model,
// runs the engine, and reports every failure as services.ErrTranscription.
package transcription
