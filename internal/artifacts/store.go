package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/fileutil"
	"captioner/internal/services"
	"captioner/internal/subtitles"
)

const (
	subtitleExt   = ".srt"
	transcriptExt = ".json"
	stageName     = "artifacts"
)

// Record is the durable structured result of one transcription job. It is
// written once and read back by translation jobs.
type Record struct {
	JobID            string              `json:"job_id"`
	CreatedAt        time.Time           `json:"created_at"`
	Engine           string              `json:"engine"`
	Model            string              `json:"model,omitempty"`
	Language         string              `json:"language,omitempty"`
	LanguageDetected bool                `json:"language_detected"`
	Text             string              `json:"text"`
	Segments         []subtitles.Segment `json:"segments"`
	EngineOutput     json.RawMessage     `json:"engine_output,omitempty"`
}

// Store lays out artifacts under a single results directory:
// <id>.srt, <id>.json, and <id>_<lang>.srt for translations.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the results directory.
func (s *Store) Dir() string {
	return s.dir
}

// TranslationID derives the deterministic identifier for a (source, language) pair.
func TranslationID(sourceID, lang string) string {
	return sourceID + "_" + lang
}

// ValidateID rejects identifiers that could escape the results directory.
func ValidateID(id string) error {
	trimmed := strings.TrimSpace(id)
	switch {
	case trimmed == "":
		return services.Wrap(services.ErrValidation, stageName, "validate id", "identifier is empty", nil)
	case trimmed != id,
		strings.ContainsAny(id, `/\`),
		strings.HasPrefix(id, "."),
		strings.Contains(id, ".."):
		return services.Wrap(services.ErrValidation, stageName, "validate id", fmt.Sprintf("invalid identifier %q", id), nil)
	}
	return nil
}

// SubtitlePath returns the subtitle location for id.
func (s *Store) SubtitlePath(id string) string {
	return filepath.Join(s.dir, id+subtitleExt)
}

// TranscriptPath returns the transcript record location for id.
func (s *Store) TranscriptPath(id string) string {
	return filepath.Join(s.dir, id+transcriptExt)
}

// WriteSubtitle encodes segments as SubRip and writes them for id.
func (s *Store) WriteSubtitle(id string, segments []subtitles.Segment) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	path := s.SubtitlePath(id)
	if err := fileutil.WriteFileAtomic(path, []byte(subtitles.Encode(segments))); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "write subtitle", path, err)
	}
	return path, nil
}

// WriteRecord persists the transcript record keyed by its JobID.
func (s *Store) WriteRecord(record Record) (string, error) {
	if err := ValidateID(record.JobID); err != nil {
		return "", err
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	if record.Segments == nil {
		record.Segments = []subtitles.Segment{}
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return "", services.Wrap(services.ErrTranscription, stageName, "encode record", record.JobID, err)
	}
	path := s.TranscriptPath(record.JobID)
	if err := fileutil.WriteFileAtomic(path, data); err != nil {
		return "", services.Wrap(services.ErrExternalTool, stageName, "write record", path, err)
	}
	return path, nil
}

// LoadRecord reads the transcript record for id. A missing record is reported
// as services.ErrNotFound.
func (s *Store) LoadRecord(id string) (*Record, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	path := s.TranscriptPath(id)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, stageName, "load record", fmt.Sprintf("no transcript for %s", id), nil)
		}
		return nil, services.Wrap(services.ErrExternalTool, stageName, "load record", path, err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, services.Wrap(services.ErrValidation, stageName, "load record", fmt.Sprintf("corrupt transcript for %s", id), err)
	}
	return &record, nil
}

// ReadSubtitle returns the raw subtitle text for id.
func (s *Store) ReadSubtitle(id string) ([]byte, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.SubtitlePath(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, stageName, "read subtitle", fmt.Sprintf("no subtitle for %s", id), nil)
		}
		return nil, services.Wrap(services.ErrExternalTool, stageName, "read subtitle", id, err)
	}
	return data, nil
}
