// Package logging assembles structured slog loggers and formatting helpers used
// across captioner.
//
// It owns the configurable console/JSON handlers, tees daemon output into a
// JSON log file, and exposes context-aware helpers so pipeline code tags log
// lines with job IDs, stages, and correlation IDs automatically. A no-op logger
// is available for tests and wiring code that cannot fail.
package logging
