// Package media classifies uploads and extracts transcription-ready audio.
//
// Video containers are decoded by ffmpeg into mono 16 kHz PCM WAV files;
// audio uploads are handed to the transcription engine unchanged. The
// Normalizer reports failures as services.ErrNormalization (with ffmpeg's
// diagnostics) or services.ErrNotFound for missing inputs.
package media
