// Package services defines shared utilities consumed by the pipeline stages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (not found, normalization, transcription, translation,
//     validation) after they cross package boundaries.
//   - The CommandRunner abstraction that keeps external tool execution testable.
//
// Client packages for external services live in subdirectories (llm,
// libretranslate, whisperx, remotewhisper).
package services
