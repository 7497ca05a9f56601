// Package catalog indexes finished artifacts in SQLite.
//
// The catalog only remembers what was produced (subtitle and transcript
// locations, language, segment counts) so artifacts can be listed after a
// restart. Job status is never stored here; it lives in the in-memory
// registry and is lost when the process exits.
//
// The database runs in WAL mode with a busy timeout, and writes retry briefly
// on SQLITE_BUSY.
package catalog
