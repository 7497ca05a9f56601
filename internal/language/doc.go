// Package language normalizes user-supplied language codes.
//
// Transcription hints and translation targets pass through here so that
// identifiers and output file names use one canonical BCP 47 spelling, and
// engines receive the base ISO 639-1 code they expect.
package language
