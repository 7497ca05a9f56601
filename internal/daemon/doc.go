// Package daemon coordinates the long-running captioner process.
//
// It wires configuration, the artifact store and catalog, the transcription
// model, the translation backend, the job orchestrator, the HTTP API, and the
// inbox watcher into a single lifecycle with flock-based locking to prevent
// multiple instances.
//
// Keep orchestration logic here: pipeline steps live in their respective
// packages while the daemon focuses on startup, shutdown, and health.
package daemon
