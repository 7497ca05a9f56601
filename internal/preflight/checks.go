package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"captioner/internal/backends"
	"captioner/internal/config"
	"captioner/internal/translation"
)

const translationCheckTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckTranscriptionEngine validates engine settings without loading a model.
func CheckTranscriptionEngine(cfg *config.Config) Result {
	const name = "Transcription engine"
	engine, err := backends.TranscriptionEngine(cfg)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if engine.Name == config.EngineRemote && strings.TrimSpace(cfg.Transcription.RemoteURL) == "" {
		return Result{Name: name, Detail: "remote engine selected but transcription.remote_url is empty"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (model %s)", engine.Name, engine.Model)}
}

// CheckTranslationFromConfig builds the configured backend and checks it.
// Translation is optional: transcription works without it.
func CheckTranslationFromConfig(ctx context.Context, cfg *config.Config) Result {
	translator, err := backends.Translator(cfg)
	if err != nil {
		return Result{Name: "Translation", Detail: err.Error(), Optional: true}
	}
	if cfg.Translation.Backend == config.BackendLLM && cfg.Translation.APIKey == "" {
		return Result{Name: "Translation (llm)", Detail: "API key missing", Optional: true}
	}
	return CheckTranslator(ctx, translator)
}

// CheckTranslator verifies that the backend is reachable and accepts our
// credentials. Backends without a health probe pass.
func CheckTranslator(ctx context.Context, translator translation.Translator) Result {
	name := fmt.Sprintf("Translation (%s)", translator.Name())
	checker, ok := translator.(translation.HealthChecker)
	if !ok {
		return Result{Name: name, Passed: true, Detail: "no health probe", Optional: true}
	}

	checkCtx, cancel := context.WithTimeout(ctx, translationCheckTimeout)
	defer cancel()
	if err := checker.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err), Optional: true}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable", Optional: true}
}

// summarizeError produces a human-readable summary for health check failures.
func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (API unreachable)"
	}
	return err.Error()
}
