package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/five82/reel/internal/api"
	"github.com/five82/reel/internal/app"
	"github.com/five82/reel/internal/config"
	"github.com/five82/reel/internal/jobs"
	"github.com/five82/reel/internal/logging"
	"github.com/five82/reel/internal/logtail"
	"github.com/five82/reel/internal/upload"
)

type globalFlags struct {
	configPath string
	logLevel   string
}

func (g *globalFlags) options(stderr io.Writer) app.Options {
	return app.Options{ConfigPath: g.configPath, LogLevel: g.logLevel, LogOutput: stderr}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "reel",
		Short: "Turn long videos into clips from the terminal",
		Long: `reel talks to a clip service over HTTP and WebSocket.

Without a subcommand it opens the interactive dashboard: pick an intent,
give it a file or URL, and follow processing until clips are ready.
Live updates fall back to HTTP polling when the WebSocket is unavailable.

Configuration is read from ~/.config/reel/config.toml unless --config
is given.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.Run(cmd.Context(), app.Options{ConfigPath: flags.configPath, LogLevel: flags.logLevel})
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "config file (default ~/.config/reel/config.toml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newUploadCmd(flags, stdout, stderr),
		newWatchCmd(flags, stdout, stderr),
		newStatsCmd(flags, stdout, stderr),
		newLogsCmd(flags, stdout),
	)
	return root
}

func newUploadCmd(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	var (
		intent string
		wait   bool
	)
	cmd := &cobra.Command{
		Use:   "upload <file|url>",
		Short: "Upload a video and start processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.New(flags.options(stderr))
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			req := api.CreateJobRequest{Intent: intent}
			source := args[0]

			if strings.Contains(source, "://") {
				if res := upload.ValidateURL(source); !res.Valid {
					return errors.New(res.Error)
				}
				req.VideoURL = source
			} else {
				fmt.Fprintln(stdout, c.Translator.T("cli.uploading", source))
				res, err := c.Uploader.Upload(ctx, source, progressPrinter(stderr))
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, c.Translator.T("cli.uploaded", source, res.UploadID))
				req.UploadID = res.UploadID
			}

			job, err := c.API.CreateJob(ctx, req)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			fmt.Fprintln(stdout, c.Translator.T("cli.job_created", job.ID))
			if !wait {
				return nil
			}
			return followJob(ctx, c, job.ID, stdout)
		},
	}
	cmd.Flags().StringVarP(&intent, "intent", "i", "short_clips", "processing intent")
	cmd.Flags().BoolVar(&wait, "wait", true, "wait for the job to finish")
	return cmd
}

func newWatchCmd(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Follow a job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.New(flags.options(stderr))
			if err != nil {
				return err
			}
			defer c.Close()
			return followJob(cmd.Context(), c, args[0], stdout)
		},
	}
}

func newStatsCmd(flags *globalFlags, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue statistics and agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.New(flags.options(stderr))
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := cmd.Context()
			stats, err := c.API.FetchQueueStats(ctx)
			if err != nil {
				return fmt.Errorf("queue stats: %w", err)
			}
			agents, err := c.API.FetchAgents(ctx)
			if err != nil {
				return fmt.Errorf("agents: %w", err)
			}

			tr := c.Translator.T
			fmt.Fprintln(stdout, table.New().
				Border(lipgloss.NormalBorder()).
				Headers(tr("queue.title"), "").
				Row(tr("queue.pending"), fmt.Sprint(stats.Pending)).
				Row(tr("queue.processing"), fmt.Sprint(stats.Processing)).
				Row(tr("queue.completed"), fmt.Sprint(stats.Completed)).
				Row(tr("queue.failed"), fmt.Sprint(stats.Failed)).
				Row("", tr("queue.workers", stats.ActiveWorkers, stats.TotalWorkers)).
				Render())

			if len(agents) == 0 {
				fmt.Fprintln(stdout, tr("agents.none"))
				return nil
			}
			t := table.New().Border(lipgloss.NormalBorder()).Headers(tr("agents.title"), "status", "last seen")
			for _, a := range agents {
				t.Row(a.Name, a.Status, a.LastSeen)
			}
			fmt.Fprintln(stdout, t.Render())
			return nil
		},
	}
}

func newLogsCmd(flags *globalFlags, stdout io.Writer) *cobra.Command {
	var (
		lines int
		level string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the end of the configured log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.LogFile == "" {
				return errors.New("log_file is not configured")
			}
			tail, err := logtail.Read(cfg.LogFile, lines, logging.ParseLevel(level))
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(stdout, line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "number of lines")
	cmd.Flags().StringVar(&level, "level", "debug", "minimum level to show")
	return cmd
}

// followJob watches jobID with the HTTP monitor and prints its clips once
// it completes.
func followJob(ctx context.Context, c *app.Context, jobID string, out io.Writer) error {
	final, err := c.Monitor.Watch(ctx, jobID, func(j api.JobStatus) {
		line := j.Status
		if j.Stage != "" {
			line += " · " + j.Stage
		}
		if ts := j.ParsedUpdatedAt(); !ts.IsZero() {
			line = ts.Local().Format(time.TimeOnly) + " " + line
		}
		fmt.Fprintf(out, "%s %5.1f%%\n", line, j.Progress)
	})
	if err != nil {
		if errors.Is(err, jobs.ErrMonitorTimeout) {
			return fmt.Errorf("%w (try: reel watch %s)", err, jobID)
		}
		return err
	}

	fmt.Fprintln(out, c.Translator.T("cli.job_finished", jobID, final.Status))
	if !final.Succeeded() {
		if final.Error != "" {
			return fmt.Errorf("job %s failed: %s", jobID, final.Error)
		}
		return fmt.Errorf("job %s %s", jobID, final.Status)
	}

	clips, err := c.API.FetchJobClips(ctx, jobID)
	if err != nil {
		return fmt.Errorf("fetch clips: %w", err)
	}
	for _, clip := range clips {
		fmt.Fprintf(out, "%-10s %-40s %7.1fs  %s\n", clip.ID, clip.Title, clip.Duration().Seconds(), clip.URL)
	}
	return nil
}

// progressPrinter reports upload progress in 10% steps.
func progressPrinter(w io.Writer) upload.Progress {
	last := -1
	return func(sent, total int64) {
		if total <= 0 {
			return
		}
		pct := int(sent * 100 / total)
		if step := pct / 10; step != last {
			last = step
			fmt.Fprintf(w, "upload %3d%%\n", step*10)
		}
	}
}
