// Package whisperx runs the WhisperX CLI through uvx as a transcription engine.
//
// Each run writes WhisperX's JSON output into a private directory, which is
// parsed into subtitle segments and removed afterwards. Load resolves the uvx
// environment once so the first job does not pay the package download cost.
package whisperx
