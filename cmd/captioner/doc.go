// Package main hosts the captioner CLI.
//
// The cobra command tree runs the daemon in the foreground ("serve") and
// drives a running daemon over its HTTP API: submitting media, following job
// status, requesting translations, and downloading subtitles. Local-only
// commands cover configuration scaffolding and preflight diagnostics.
package main
