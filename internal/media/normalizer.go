package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/fileutil"
	"captioner/internal/logging"
	"captioner/internal/services"
)

const stageName = "normalize"

// Config captures runtime settings for audio extraction.
type Config struct {
	FFmpegBinary string
	// WorkDir receives intermediate audio files. Defaults to the input's directory.
	WorkDir string
	// Timeout bounds a single ffmpeg run. Zero disables the bound.
	Timeout time.Duration
}

// Normalized describes the audio a transcription engine should consume.
type Normalized struct {
	Source       string
	Kind         Kind
	AudioPath    string
	Intermediate bool
}

// Normalizer turns an uploaded media file into transcription-ready audio.
type Normalizer struct {
	cfg    Config
	run    services.CommandRunner
	logger *slog.Logger
}

// NewNormalizer constructs a normalizer. A nil logger discards output.
func NewNormalizer(cfg Config, logger *slog.Logger) *Normalizer {
	if strings.TrimSpace(cfg.FFmpegBinary) == "" {
		cfg.FFmpegBinary = "ffmpeg"
	}
	return &Normalizer{
		cfg:    cfg,
		run:    services.ExecRunner,
		logger: logging.NewComponentLogger(logger, "normalizer"),
	}
}

// WithCommandRunner sets a custom command runner (for testing).
func (n *Normalizer) WithCommandRunner(runner services.CommandRunner) {
	if runner != nil {
		n.run = runner
	}
}

// ExtractArgs builds the ffmpeg arguments producing mono 16 kHz signed 16-bit PCM.
func ExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// Normalize prepares path for transcription. Video inputs are decoded into
// <WorkDir>/<id>.wav; audio inputs pass through once their existence is confirmed.
func (n *Normalizer) Normalize(ctx context.Context, path string, kind Kind, id string) (Normalized, error) {
	result := Normalized{Source: path, Kind: kind}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return result, services.Wrap(services.ErrNotFound, stageName, "stat input", fmt.Sprintf("media file %s does not exist", filepath.Base(path)), nil)
		}
		return result, services.Wrap(services.ErrNormalization, stageName, "stat input", path, err)
	}

	switch kind {
	case KindAudio:
		result.AudioPath = path
		return result, nil
	case KindVideo:
	default:
		return result, services.Wrap(services.ErrValidation, stageName, "classify input", fmt.Sprintf("unsupported media kind %q", kind), nil)
	}

	workDir := n.cfg.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(path)
	}
	dest := filepath.Join(workDir, id+".wav")
	result.AudioPath = dest
	result.Intermediate = true

	runCtx := ctx
	if n.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	output, err := n.run(runCtx, n.cfg.FFmpegBinary, ExtractArgs(path, dest)...)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", context.DeadlineExceeded, n.cfg.Timeout)
		}
		return result, services.Wrap(services.ErrNormalization, stageName, "ffmpeg", diagnostic(output), err)
	}
	if !fileutil.NonEmptyFile(dest) {
		return result, services.Wrap(services.ErrNormalization, stageName, "ffmpeg", "no audio produced: "+diagnostic(output), nil)
	}
	logging.WithContext(ctx, n.logger).Info("audio extracted",
		logging.String("source", filepath.Base(path)),
		logging.String("audio", filepath.Base(dest)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "audio_extracted"),
	)
	return result, nil
}

// Cleanup removes the intermediate audio and the original upload after a
// successful video run. Failures are logged, never returned.
func (n *Normalizer) Cleanup(ctx context.Context, res Normalized) {
	if !res.Intermediate {
		return
	}
	logger := logging.WithContext(ctx, n.logger)
	for _, path := range []string{res.AudioPath, res.Source} {
		if err := fileutil.RemoveIfExists(path); err != nil {
			logging.WarnWithContext(logger, "cleanup failed; file remains on disk", "cleanup_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check upload_dir permissions"),
				logging.String(logging.FieldImpact, "disk space is not reclaimed"),
			)
		}
	}
}

func diagnostic(output []byte) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return "ffmpeg produced no diagnostics"
	}
	const limit = 2000
	if len(text) > limit {
		text = text[len(text)-limit:]
	}
	return text
}
