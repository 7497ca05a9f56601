package whisperx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"captioner/internal/services"
)

const sampleJSON = `{
  "language": "en",
  "segments": [
    {"start": 0.0, "end": 1.25, "text": " Hello there. "},
    {"start": 1.5, "end": 3.0, "text": "General Kenobi."}
  ]
}`

func valueAfter(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}
	return args[i+1]
}

func TestBuildArgsCPU(t *testing.T) {
	svc := NewService(Config{})
	args := svc.BuildArgs("/tmp/a.wav", "/tmp/out", "English")

	if valueAfter(args, "--model") != DefaultModel {
		t.Fatalf("expected default model, args=%v", args)
	}
	if valueAfter(args, "--language") != "en" {
		t.Fatalf("expected base language en, args=%v", args)
	}
	if valueAfter(args, "--device") != CPUDevice || valueAfter(args, "--compute_type") != CPUComputeType {
		t.Fatalf("expected cpu device flags, args=%v", args)
	}
	if valueAfter(args, "--vad_method") != VADMethodSilero {
		t.Fatalf("expected silero vad, args=%v", args)
	}
	if slices.Contains(args, "--hf_token") {
		t.Fatalf("hf token must not be passed for silero, args=%v", args)
	}
}

func TestBuildArgsCUDAPyannoteNoLanguage(t *testing.T) {
	svc := NewService(Config{Model: "large-v3", CUDAEnabled: true, VADMethod: VADMethodPyannote, HFToken: "hf_x"})
	args := svc.BuildArgs("/tmp/a.wav", "/tmp/out", "")

	if valueAfter(args, "--index-url") != CUDAIndexURL {
		t.Fatalf("expected cuda index, args=%v", args)
	}
	if valueAfter(args, "--hf_token") != "hf_x" {
		t.Fatalf("expected hf token, args=%v", args)
	}
	if slices.Contains(args, "--language") {
		t.Fatalf("language must be omitted for detection, args=%v", args)
	}
	if valueAfter(args, "--device") != CUDADevice {
		t.Fatalf("expected cuda device, args=%v", args)
	}
}

func TestTranscribeParsesOutput(t *testing.T) {
	svc := NewService(Config{WorkDir: t.TempDir()})
	svc.WithCommandRunner(func(_ context.Context, name string, args ...string) ([]byte, error) {
		if name != UVXCommand {
			t.Fatalf("unexpected command %q", name)
		}
		outDir := valueAfter(args, "--output_dir")
		return nil, os.WriteFile(filepath.Join(outDir, "job.json"), []byte(sampleJSON), 0o644)
	})

	out, err := svc.Transcribe(context.Background(), "/uploads/job.wav", "")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Language != "en" || len(out.Segments) != 2 {
		t.Fatalf("unexpected output %+v", out)
	}
	if out.Segments[0].Text != "Hello there." || out.Segments[0].End != 1.25 {
		t.Fatalf("unexpected first segment %+v", out.Segments[0])
	}
	if out.Text != "Hello there. General Kenobi." {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.Engine != EngineName || len(out.Raw) == 0 {
		t.Fatalf("expected engine metadata and raw output, got %+v", out)
	}
}

func TestTranscribeFailures(t *testing.T) {
	svc := NewService(Config{WorkDir: t.TempDir()})
	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return []byte("RuntimeError: CUDA failed"), errors.New("exit status 1")
	})
	_, err := svc.Transcribe(context.Background(), "/uploads/job.wav", "en")
	if !errors.Is(err, services.ErrTranscription) || !strings.Contains(err.Error(), "CUDA failed") {
		t.Fatalf("expected transcription error with diagnostics, got %v", err)
	}

	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, nil
	})
	if _, err := svc.Transcribe(context.Background(), "/uploads/job.wav", "en"); !errors.Is(err, services.ErrTranscription) {
		t.Fatalf("expected missing output to fail, got %v", err)
	}
}

func TestLoadResolvesEnvironment(t *testing.T) {
	svc := NewService(Config{})
	var gotArgs []string
	svc.WithCommandRunner(func(_ context.Context, _ string, args ...string) ([]byte, error) {
		gotArgs = args
		return nil, nil
	})
	engine, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if engine.Name() != EngineName {
		t.Fatalf("unexpected engine %q", engine.Name())
	}
	if !slices.Contains(gotArgs, "--help") {
		t.Fatalf("expected warm-up invocation, got %v", gotArgs)
	}

	svc.WithCommandRunner(func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("uvx: not found")
	})
	if _, err := svc.Load(context.Background()); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}
