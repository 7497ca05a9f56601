package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"captioner/internal/artifacts"
	"captioner/internal/subtitles"
)

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	const chunkSize = 32 * 1024
	buf := make([]byte, chunkSize)
	for i := range buf {
		buf[i] = 0x42
	}

	remaining := size
	for remaining > 0 {
		toWrite := min(int64(chunkSize), remaining)
		if _, err := f.Write(buf[:toWrite]); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
		remaining -= toWrite
	}
}

// SampleSegments returns a short two-cue transcript.
func SampleSegments() []subtitles.Segment {
	return []subtitles.Segment{
		{Start: 0, End: 1.5, Text: "Hello there."},
		{Start: 1.5, End: 3.25, Text: "General Kenobi."},
	}
}

// WriteTranscript stores a finished transcription for id in store, as a
// completed job would.
func WriteTranscript(t testing.TB, store *artifacts.Store, id, lang string, segments []subtitles.Segment) {
	t.Helper()

	if _, err := store.WriteSubtitle(id, segments); err != nil {
		t.Fatalf("write subtitle %s: %v", id, err)
	}
	record := artifacts.Record{
		JobID:    id,
		Engine:   "stub",
		Language: lang,
		Segments: segments,
	}
	if _, err := store.WriteRecord(record); err != nil {
		t.Fatalf("write record %s: %v", id, err)
	}
}
