package preflight

import (
	"context"

	"captioner/internal/config"
	"captioner/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional failures are reported but do not block startup.
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Upload directory", cfg.Paths.UploadDir),
		CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Watch.Enabled {
		results = append(results, CheckDirectoryAccess("Watch directory", cfg.Watch.Dir))
	}

	for _, status := range deps.CheckBinaries(deps.Requirements(cfg)) {
		results = append(results, fromDependency(status))
	}

	results = append(results, CheckTranscriptionEngine(cfg))
	results = append(results, CheckTranslationFromConfig(ctx, cfg))
	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

func fromDependency(status deps.Status) Result {
	detail := status.Command
	if !status.Available {
		detail = status.Detail
	}
	return Result{Name: status.Name, Passed: status.Available, Detail: detail, Optional: status.Optional}
}
