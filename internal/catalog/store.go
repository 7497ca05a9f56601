package catalog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"captioner/internal/services"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion must be bumped when schema.sql changes incompatibly.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Kind mirrors the job kind that produced an artifact.
type Kind string

const (
	KindTranscript  Kind = "transcription"
	KindTranslation Kind = "translation"
)

// Entry is one catalogued artifact.
type Entry struct {
	ID               string    `json:"id"`
	Kind             Kind      `json:"kind"`
	SourceID         string    `json:"source_id,omitempty"`
	Language         string    `json:"language,omitempty"`
	LanguageDetected bool      `json:"language_detected,omitempty"`
	Engine           string    `json:"engine,omitempty"`
	SubtitlePath     string    `json:"subtitle_path"`
	TranscriptPath   string    `json:"transcript_path,omitempty"`
	SegmentCount     int       `json:"segment_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store is the SQLite-backed catalog.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates or opens the catalog database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "open", "catalog path is empty", nil)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to rebuild)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Upsert records entry, replacing any earlier entry with the same id while
// keeping its original creation time.
func (s *Store) Upsert(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.ID) == "" {
		return services.Wrap(services.ErrValidation, "catalog", "upsert", "entry id is empty", nil)
	}
	now := time.Now().UTC()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO artifacts (
                id, kind, source_id, language, language_detected, engine,
                subtitle_path, transcript_path, segment_count, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
            ON CONFLICT(id) DO UPDATE SET
                kind = excluded.kind,
                source_id = excluded.source_id,
                language = excluded.language,
                language_detected = excluded.language_detected,
                engine = excluded.engine,
                subtitle_path = excluded.subtitle_path,
                transcript_path = excluded.transcript_path,
                segment_count = excluded.segment_count,
                updated_at = excluded.updated_at`,
			entry.ID,
			string(entry.Kind),
			nullableString(entry.SourceID),
			nullableString(entry.Language),
			boolToInt(entry.LanguageDetected),
			nullableString(entry.Engine),
			entry.SubtitlePath,
			nullableString(entry.TranscriptPath),
			entry.SegmentCount,
			entry.CreatedAt.UTC().Format(time.RFC3339Nano),
			now.Format(time.RFC3339Nano),
		)
		return err
	})
}

const selectColumns = `id, kind, source_id, language, language_detected, engine,
    subtitle_path, transcript_path, segment_count, created_at, updated_at`

// Get returns the entry for id, or services.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM artifacts WHERE id = ?", id)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "catalog", "get", fmt.Sprintf("no artifact %s", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get artifact: %w", err)
	}
	return entry, nil
}

// List returns catalogued entries, newest first. A sourceID filter limits
// the result to that transcript and its translations.
func (s *Store) List(ctx context.Context, sourceID string) ([]Entry, error) {
	query := "SELECT " + selectColumns + " FROM artifacts"
	var args []any
	if sourceID = strings.TrimSpace(sourceID); sourceID != "" {
		query += " WHERE id = ? OR source_id = ?"
		args = append(args, sourceID, sourceID)
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan artifact: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Delete removes the entry for id. Missing entries are not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM artifacts WHERE id = ?", id)
		return err
	})
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		entry                              Entry
		kind                               string
		sourceID, lang, engine, transcript sql.NullString
		detected                           int
		createdAt, updatedAt               string
	)
	if err := row.Scan(&entry.ID, &kind, &sourceID, &lang, &detected, &engine,
		&entry.SubtitlePath, &transcript, &entry.SegmentCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	entry.Kind = Kind(kind)
	entry.SourceID = sourceID.String
	entry.Language = lang.String
	entry.LanguageDetected = detected != 0
	entry.Engine = engine.String
	entry.TranscriptPath = transcript.String
	entry.CreatedAt = parseTime(createdAt)
	entry.UpdatedAt = parseTime(updatedAt)
	return &entry, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code()&0xff == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil || !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}
