package whisperx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"captioner/internal/language"
	"captioner/internal/services"
	"captioner/internal/subtitles"
	"captioner/internal/transcription"
)

const stageName = "whisperx"

// Service provides WhisperX transcription.
type Service struct {
	cfg Config
	run services.CommandRunner
}

// NewService creates a WhisperX service with the given configuration.
func NewService(cfg Config) *Service {
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = DefaultModel
	}
	if strings.TrimSpace(cfg.VADMethod) == "" {
		cfg.VADMethod = VADMethodSilero
	}
	return &Service{cfg: cfg, run: runWithTorchEnv}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner services.CommandRunner) {
	if runner != nil {
		s.run = runner
	}
}

// Name identifies the engine in transcript records.
func (s *Service) Name() string { return EngineName }

// Model returns the configured model name.
func (s *Service) Model() string { return s.cfg.Model }

// Load resolves the WhisperX environment through uvx so later runs start
// without downloading packages. It satisfies transcription.Loader.
func (s *Service) Load(ctx context.Context) (transcription.Engine, error) {
	args := append(s.indexArgs(), "whisperx", "--help")
	if output, err := s.run(ctx, UVXCommand, args...); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, stageName, "prepare environment", tail(output), err)
	}
	return s, nil
}

// Transcribe runs WhisperX on audioPath. An empty language lets WhisperX
// detect it; the detected code is reported in Output.Language.
func (s *Service) Transcribe(ctx context.Context, audioPath, lang string) (transcription.Output, error) {
	var out transcription.Output
	if strings.TrimSpace(audioPath) == "" {
		return out, services.Wrap(services.ErrValidation, stageName, "transcribe", "audio path required", nil)
	}
	workDir := s.cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	outputDir, err := os.MkdirTemp(workDir, "whisperx-*")
	if err != nil {
		return out, services.Wrap(services.ErrTranscription, stageName, "create output dir", workDir, err)
	}
	defer os.RemoveAll(outputDir)

	runCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	output, err := s.run(runCtx, UVXCommand, s.BuildArgs(audioPath, outputDir, lang)...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return out, services.Wrap(services.ErrTimeout, stageName, "run whisperx", fmt.Sprintf("exceeded %s", s.cfg.Timeout), err)
		}
		return out, services.Wrap(services.ErrTranscription, stageName, "run whisperx", tail(output), err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	raw, err := os.ReadFile(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return out, services.Wrap(services.ErrTranscription, stageName, "read output", "whisperx produced no json output", err)
	}
	payload, err := ParseOutput(raw)
	if err != nil {
		return out, err
	}

	out = payload.toOutput()
	out.Engine = EngineName
	out.Model = s.cfg.Model
	out.Raw = raw
	return out, nil
}

// BuildArgs constructs the uvx command arguments for a WhisperX run.
func (s *Service) BuildArgs(source, outputDir, lang string) []string {
	args := make([]string, 0, 40)
	args = append(args, s.indexArgs()...)
	args = append(args,
		"whisperx",
		source,
		"--model", s.cfg.Model,
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", OutputFormat,
		"--segment_resolution", SegmentResolution,
		"--chunk_size", ChunkSize,
		"--vad_onset", VADOnset,
		"--vad_offset", VADOffset,
		"--beam_size", BeamSize,
		"--temperature", Temperature,
		"--vad_method", s.cfg.VADMethod,
	)
	if s.cfg.VADMethod == VADMethodPyannote && s.cfg.HFToken != "" {
		args = append(args, "--hf_token", s.cfg.HFToken)
	}
	if code := language.Base(lang); code != "" {
		args = append(args, "--language", code)
	}
	if s.cfg.CUDAEnabled {
		args = append(args, "--device", CUDADevice)
	} else {
		args = append(args, "--device", CPUDevice, "--compute_type", CPUComputeType)
	}
	return args
}

func (s *Service) indexArgs() []string {
	if s.cfg.CUDAEnabled {
		return []string{"--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL}
	}
	return []string{"--index-url", PypiIndexURL}
}

// Segment is a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Payload is the subset of WhisperX JSON output captioner consumes.
type Payload struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// ParseOutput decodes WhisperX JSON output.
func ParseOutput(data []byte) (Payload, error) {
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return payload, services.Wrap(services.ErrTranscription, stageName, "parse output", "invalid whisperx json", err)
	}
	return payload, nil
}

func (p Payload) toOutput() transcription.Output {
	out := transcription.Output{
		Language: strings.TrimSpace(p.Language),
		Segments: make([]subtitles.Segment, 0, len(p.Segments)),
	}
	parts := make([]string, 0, len(p.Segments))
	for _, seg := range p.Segments {
		text := strings.TrimSpace(seg.Text)
		out.Segments = append(out.Segments, subtitles.Segment{Start: seg.Start, End: seg.End, Text: text})
		if text != "" {
			parts = append(parts, text)
		}
	}
	out.Text = strings.Join(parts, " ")
	return out
}

// runWithTorchEnv executes name, forcing legacy torch.load behaviour so the
// pyannote checkpoints bundled with WhisperX keep loading under torch 2.6+.
func runWithTorchEnv(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	return cmd.CombinedOutput()
}

func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	const limit = 2000
	if len(text) > limit {
		text = text[len(text)-limit:]
	}
	return text
}
