package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captioner/internal/api"
	"captioner/internal/apiclient"
	"captioner/internal/preflight"
)

const daemonProbeTimeout = 3 * time.Second

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, external tools, and backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg)
			health, healthErr := probeDaemon(cmd.Context(), ctx)

			if asJSON {
				report := doctorReport{Checks: make([]doctorCheck, 0, len(results))}
				for _, r := range results {
					report.Checks = append(report.Checks, doctorCheck{Name: r.Name, Passed: r.Passed, Optional: r.Optional, Detail: r.Detail})
				}
				if healthErr == nil {
					report.Daemon = &health
				}
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprint(out, renderTable(
					[]string{"Check", "Result", "Detail"},
					buildPreflightRows(results),
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
					colorize,
				))
				printDaemonHealth(out, health, healthErr, colorize)
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				names := make([]string, 0, len(failed))
				for _, r := range failed {
					names = append(names, r.Name)
				}
				return fmt.Errorf("%d check(s) failed: %s", len(failed), strings.Join(names, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type doctorCheck struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional"`
	Detail   string `json:"detail"`
}

type doctorReport struct {
	Checks []doctorCheck `json:"checks"`
	Daemon *api.Health   `json:"daemon,omitempty"`
}

func buildPreflightRows(results []preflight.Result) [][]string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		result := "ok"
		switch {
		case r.Passed:
		case r.Optional:
			result = "warn"
		default:
			result = "FAIL"
		}
		rows = append(rows, []string{r.Name, result, r.Detail})
	}
	return rows
}

func probeDaemon(parent context.Context, ctx *commandContext) (api.Health, error) {
	client, err := ctx.client()
	if err != nil {
		return api.Health{}, err
	}
	probeCtx, cancel := context.WithTimeout(parent, daemonProbeTimeout)
	defer cancel()
	return client.Health(probeCtx)
}

func printDaemonHealth(out io.Writer, health api.Health, err error, colorize bool) {
	switch {
	case err != nil && apiclient.IsAPIUnavailable(err):
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		return
	case err != nil:
		fmt.Fprintln(out, renderStatusLine("Daemon", statusError, err.Error(), colorize))
		return
	}
	kind := statusOK
	if health.Status != "ok" {
		kind = statusWarn
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", kind, fmt.Sprintf("%s (pid %d, %d jobs)", health.Status, health.PID, health.Jobs), colorize))
	engine := fmt.Sprintf("%s model %s", health.Engine, health.Model)
	fmt.Fprintln(out, renderStatusLine("Transcription", statusInfo, engine+", loaded: "+yesNo(health.ModelLoaded), colorize))
	if health.TranslationBackend != "" {
		fmt.Fprintln(out, renderStatusLine("Translation", statusInfo, health.TranslationBackend, colorize))
	}
	for _, dep := range health.Dependencies {
		kind := statusOK
		message := "ready"
		if !dep.Available {
			kind = statusError
			if dep.Optional {
				kind = statusWarn
			}
			message = dep.Detail
			if message == "" {
				message = "not available"
			}
		}
		fmt.Fprintln(out, renderStatusLine(dep.Name, kind, message, colorize))
	}
}
