package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"captioner/internal/backends"
	"captioner/internal/config"
	"captioner/internal/daemon"
	"captioner/internal/subtitles"
	"captioner/internal/testsupport"
	"captioner/internal/transcription"
)

type stubEngine struct{}

func (stubEngine) Name() string  { return "stub" }
func (stubEngine) Model() string { return "tiny" }

func (stubEngine) Transcribe(_ context.Context, _ string, language string) (transcription.Output, error) {
	return transcription.Output{
		Language: language,
		Text:     "hello there. general kenobi.",
		Segments: []subtitles.Segment{
			{Start: 0, End: 1.2, Text: "hello there."},
			{Start: 1.2, End: 2.5, Text: "general kenobi."},
		},
	}, nil
}

type upperTranslator struct{}

func (upperTranslator) Name() string { return "upper" }

func (upperTranslator) Translate(_ context.Context, text, _ string) (string, error) {
	return strings.ToUpper(text), nil
}

type cliTestEnv struct {
	cfg        *config.Config
	daemon     *daemon.Daemon
	configPath string
	baseDir    string
}

// setupCLITestEnv starts a daemon with stub backends and writes a config
// file pointing the CLI at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	d, err := daemon.New(cfg, daemon.Options{
		Engine: &backends.Engine{
			Name:  "stub",
			Model: "tiny",
			Loader: func(context.Context) (transcription.Engine, error) {
				return stubEngine{}, nil
			},
		},
		Translator: upperTranslator{},
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon start: %v", err)
	}

	cfg.Paths.APIBind = d.Addr()
	base := testsupport.BaseDir(cfg)
	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, daemon: d, configPath: configPath, baseDir: base}
}

// offlineConfig writes a config whose API address has no listener.
func offlineConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	return cfg, configPath
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}
