package media_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"captioner/internal/media"
	"captioner/internal/services"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestKindForPath(t *testing.T) {
	tests := map[string]media.Kind{
		"a.mp4":       media.KindVideo,
		"b.MOV":       media.KindVideo,
		"c.mkv":       media.KindVideo,
		"d.mp3":       media.KindAudio,
		"e.wav":       media.KindAudio,
		"f.ogg":       media.KindAudio,
		"g.txt":       media.KindUnknown,
		"no-extension": media.KindUnknown,
	}
	for path, want := range tests {
		if got := media.KindForPath(path); got != want {
			t.Errorf("KindForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestNormalizeAudioPassThrough(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "clip.mp3")
	writeFile(t, src, "mp3")

	n := media.NewNormalizer(media.Config{}, nil)
	n.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		t.Fatal("ffmpeg should not run for audio inputs")
		return nil, nil
	})
	res, err := n.Normalize(context.Background(), src, media.KindAudio, "job")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if res.AudioPath != src || res.Intermediate {
		t.Fatalf("unexpected result %+v", res)
	}

	n.Cleanup(context.Background(), res)
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("audio uploads must not be deleted: %v", err)
	}
}

func TestNormalizeMissingInput(t *testing.T) {
	n := media.NewNormalizer(media.Config{}, nil)
	for _, kind := range []media.Kind{media.KindAudio, media.KindVideo} {
		_, err := n.Normalize(context.Background(), filepath.Join(t.TempDir(), "gone.mp4"), kind, "job")
		if !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("kind %s: expected not found, got %v", kind, err)
		}
	}
}

func TestNormalizeVideoExtractsAudio(t *testing.T) {
	dir := t.TempDir()
	work := filepath.Join(dir, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "movie.mp4")
	writeFile(t, src, "video")

	var gotName string
	var gotArgs []string
	n := media.NewNormalizer(media.Config{FFmpegBinary: "ffmpeg-test", WorkDir: work}, nil)
	n.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName = name
		gotArgs = args
		return nil, os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
	})

	res, err := n.Normalize(context.Background(), src, media.KindVideo, "job-1")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	wantAudio := filepath.Join(work, "job-1.wav")
	if res.AudioPath != wantAudio || !res.Intermediate {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotName != "ffmpeg-test" {
		t.Fatalf("unexpected binary %q", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, fragment := range []string{"-i " + src, "-ac 1", "-ar 16000", "-c:a pcm_s16le"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("expected %q in args %q", fragment, joined)
		}
	}

	n.Cleanup(context.Background(), res)
	for _, path := range []string{src, wantAudio} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Fatalf("expected %s removed after cleanup, stat err=%v", path, err)
		}
	}
}

func TestNormalizeVideoFailures(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "movie.avi")
	writeFile(t, src, "video")

	t.Run("non-zero exit carries diagnostics", func(t *testing.T) {
		n := media.NewNormalizer(media.Config{}, nil)
		n.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
			return []byte("Invalid data found when processing input"), errors.New("exit status 1")
		})
		_, err := n.Normalize(context.Background(), src, media.KindVideo, "job")
		if !errors.Is(err, services.ErrNormalization) {
			t.Fatalf("expected normalization error, got %v", err)
		}
		if !strings.Contains(err.Error(), "Invalid data found") {
			t.Fatalf("expected ffmpeg diagnostics in %q", err.Error())
		}
	})

	t.Run("empty output", func(t *testing.T) {
		n := media.NewNormalizer(media.Config{}, nil)
		n.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
			return nil, os.WriteFile(args[len(args)-1], nil, 0o644)
		})
		_, err := n.Normalize(context.Background(), src, media.KindVideo, "job")
		if !errors.Is(err, services.ErrNormalization) {
			t.Fatalf("expected normalization error, got %v", err)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		n := media.NewNormalizer(media.Config{Timeout: 10 * time.Millisecond}, nil)
		n.WithCommandRunner(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
		_, err := n.Normalize(context.Background(), src, media.KindVideo, "job")
		if !errors.Is(err, services.ErrNormalization) || !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected normalization timeout, got %v", err)
		}
	})
}
