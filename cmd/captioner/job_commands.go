package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"captioner/internal/apiclient"
	"captioner/internal/config"
	"captioner/internal/jobs"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var language string
	var wait bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "submit <file>",
		Short: "Upload an audio or video file for transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("inspect %q: %w", path, err)
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Submit(cmd.Context(), path, language)
				if err != nil {
					return err
				}
				if asJSON && !wait {
					return writeJSON(cmd, resp)
				}
				if !asJSON {
					fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s as %s\n", filepath.Base(path), resp.FileID)
				}
				if !wait {
					return nil
				}
				return followJob(cmd, client, resp.FileID, asJSON)
			})
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "Source language (name or code); detected when empty")
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of a transcription or translation job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *apiclient.Client) error {
				if follow {
					return followJob(cmd, client, id, asJSON)
				}
				view, err := client.Status(cmd.Context(), id)
				if err != nil {
					if apiclient.IsNotFound(err) {
						return fmt.Errorf("job %s not found", id)
					}
					return err
				}
				if asJSON {
					return writeJSON(cmd, view)
				}
				printJobDetail(cmd.OutOrStdout(), view, shouldColorize(cmd.OutOrStdout()))
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream updates until the job finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newTranslateCommand(ctx *commandContext) *cobra.Command {
	var wait bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "translate <id> <language>",
		Short: "Translate a finished transcript into another language",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Translate(cmd.Context(), strings.TrimSpace(args[0]), strings.TrimSpace(args[1]))
				if err != nil {
					return err
				}
				if asJSON && !wait {
					return writeJSON(cmd, resp)
				}
				if !asJSON {
					fmt.Fprintf(cmd.OutOrStdout(), "Translation started as %s\n", resp.TranslationID)
				}
				if !wait {
					return nil
				}
				return followJob(cmd, client, resp.TranslationID, asJSON)
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Follow the job until it finishes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDownloadCommand(ctx *commandContext) *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "download <id>",
		Short: "Download the subtitles of a finished job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			format = strings.ToLower(strings.TrimSpace(format))
			switch format {
			case "", "srt", "vtt":
			default:
				return fmt.Errorf("unsupported format %q (want srt or vtt)", format)
			}
			return ctx.withClient(func(client *apiclient.Client) error {
				target := strings.TrimSpace(output)
				if target == "" || target == "-" {
					return client.Download(cmd.Context(), id, format, cmd.OutOrStdout())
				}
				return downloadToFile(cmd, client, id, format, target)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "srt", "Subtitle format (srt or vtt)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to this file instead of stdout")
	return cmd
}

func downloadToFile(cmd *cobra.Command, client *apiclient.Client, id, format, target string) error {
	path, err := config.ExpandPath(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".captioner-download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := client.Download(cmd.Context(), id, format, tmp); err != nil {
		_ = tmp.Close()
		if apiclient.IsNotFound(err) {
			return fmt.Errorf("no subtitles for %s", id)
		}
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}

func newJobsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs tracked by the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				views, err := client.Jobs(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					if views == nil {
						views = []jobs.View{}
					}
					return writeJSON(cmd, views)
				}
				out := cmd.OutOrStdout()
				if len(views) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Kind", "State", "Progress", "Status", "Updated"},
					buildJobRows(views),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					shouldColorize(out),
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newArtifactsCommand(ctx *commandContext) *cobra.Command {
	var source string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "List catalogued subtitle artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withClient(func(client *apiclient.Client) error {
				resp, err := client.Artifacts(cmd.Context(), strings.TrimSpace(source))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if len(resp.Artifacts) == 0 {
					fmt.Fprintln(out, "No artifacts")
					return nil
				}
				rows := make([][]string, 0, len(resp.Artifacts))
				for _, e := range resp.Artifacts {
					rows = append(rows, []string{
						e.ID,
						string(e.Kind),
						e.SourceID,
						e.Language,
						fmt.Sprintf("%d", e.SegmentCount),
						formatTime(e.CreatedAt),
					})
				}
				fmt.Fprint(out, renderTable(
					[]string{"ID", "Kind", "Source", "Language", "Segments", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
					shouldColorize(out),
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Only list a source transcription and its translations")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

// followJob streams job updates until the job is terminal. A failed or
// unknown job is reported as an error.
func followJob(cmd *cobra.Command, client *apiclient.Client, id string, asJSON bool) error {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	var lastLine string
	last, err := client.Watch(cmd.Context(), id, func(view jobs.View) {
		if asJSON {
			return
		}
		line := renderJobLine(view, colorize)
		if line == lastLine {
			return
		}
		lastLine = line
		fmt.Fprintln(out, line)
	})
	if err != nil {
		return err
	}
	if asJSON {
		if err := writeJSON(cmd, last); err != nil {
			return err
		}
	}
	return jobOutcome(id, last)
}

func jobOutcome(id string, view jobs.View) error {
	switch {
	case !view.Found():
		return fmt.Errorf("job %s not found", id)
	case view.State == jobs.StateFailure:
		if view.Error != "" {
			return fmt.Errorf("job %s failed: %s", id, view.Error)
		}
		return fmt.Errorf("job %s failed", id)
	case view.State != jobs.StateSuccess:
		return fmt.Errorf("job %s stopped in state %s", id, view.State)
	}
	return nil
}

func printJobDetail(out io.Writer, view jobs.View, colorize bool) {
	fmt.Fprintln(out, renderJobLine(view, colorize))
	if !view.CreatedAt.IsZero() {
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Created:", formatTime(view.CreatedAt))
	}
	if !view.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Updated:", formatTime(view.UpdatedAt))
	}
	if r := view.Result; r != nil {
		if r.Language != "" {
			lang := r.Language
			if r.LanguageDetected {
				lang += " (detected)"
			}
			fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Language:", lang)
		}
		if r.SourceID != "" {
			fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Source:", r.SourceID)
		}
		fmt.Fprintf(out, "%s%-*s %d\n", statusIndent, statusLabelWidth, "Segments:", len(r.Segments))
		fmt.Fprintf(out, "%s%-*s %s\n", statusIndent, statusLabelWidth, "Subtitles:", r.SubtitlePath)
	}
}

func buildJobRows(views []jobs.View) [][]string {
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{
			v.ID,
			string(v.Kind),
			string(v.State),
			fmt.Sprintf("%d%%", v.Progress),
			v.Status,
			formatTime(v.UpdatedAt),
		})
	}
	return rows
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
