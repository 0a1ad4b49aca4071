package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaconv/internal/api"
	"mediaconv/internal/config"
	"mediaconv/internal/queue"
	"mediaconv/internal/workflow"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueCancelCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var engineArgs []string
	var outputs []string
	var outputFolder string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <input>...",
		Short: "Queue a conversion job",
		Long: "Queue a conversion job. Inputs may be local paths, file:// URIs,\n" +
			"content://<store>/<key> references or http(s) URLs.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := api.Command{
				Inputs:       args,
				Args:         engineArgs,
				OutputFolder: strings.TrimSpace(outputFolder),
			}
			for _, value := range outputs {
				spec, err := parseOutputSpec(value)
				if err != nil {
					return err
				}
				command.Outputs = append(command.Outputs, api.Output{BaseName: spec.BaseName, Ext: spec.Ext})
			}
			if strings.TrimSpace(title) == "" {
				title = filepath.Base(args[0])
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				job, err := q.Enqueue(cmd.Context(), strings.TrimSpace(title), command)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued job %d (%s)\n", job.ID, job.Title)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "Job title (defaults to the first input's name)")
	cmd.Flags().StringArrayVar(&engineArgs, "arg", nil, "Argument passed through to the conversion engine (repeatable)")
	cmd.Flags().StringArrayVarP(&outputs, "output", "o", nil, "Desired output file name, e.g. clip.mp4 (repeatable)")
	cmd.Flags().StringVar(&outputFolder, "output-folder", "", "Destination folder (defaults to paths.output_dir)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// parseOutputSpec splits "name.ext" into its base name and extension.
func parseOutputSpec(value string) (queue.OutputSpec, error) {
	value = strings.TrimSpace(value)
	ext := filepath.Ext(value)
	base := strings.TrimSuffix(value, ext)
	if base == "" || len(ext) < 2 {
		return queue.OutputSpec{}, fmt.Errorf("invalid output %q: expected name.ext", value)
	}
	return queue.OutputSpec{BaseName: base, Ext: ext[1:]}, nil
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(statusFlags)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				jobs, err := q.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				jobs = api.SortJobsNewestFirst(jobs)
				if jsonOutput {
					if jobs == nil {
						jobs = []api.Job{}
					}
					return writeJSON(cmd, jobs)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						job.Title,
						job.Status,
						strconv.Itoa(len(job.Command.Inputs)),
						relativeTime(job.UpdatedAt),
						job.StatusDetail,
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Title", "Status", "Inputs", "Updated", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVarP(&statusFlags, "status", "s", nil, "Filter by status (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func relativeTime(value string) string {
	ts := api.ParseQueueTime(value)
	if ts.IsZero() {
		return ""
	}
	return humanize.Time(ts)
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				job, err := q.Describe(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}
				if jsonOutput {
					return writeJSON(cmd, job)
				}
				printJob(cmd, job)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func printJob(cmd *cobra.Command, job *api.Job) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %d: %s\n", job.ID, job.Title)
	fmt.Fprintf(out, "  Status:  %s\n", job.Status)
	if job.StatusDetail != "" {
		fmt.Fprintf(out, "  Detail:  %s\n", job.StatusDetail)
	}
	fmt.Fprintf(out, "  Created: %s\n", job.CreatedAt)
	fmt.Fprintf(out, "  Updated: %s\n", job.UpdatedAt)
	fmt.Fprintln(out, "  Inputs:")
	for i, input := range job.Command.Inputs {
		fmt.Fprintf(out, "    [%d] %s\n", i, input)
		if i < len(job.PreparedInputs) && job.PreparedInputs[i] != input {
			fmt.Fprintf(out, "        -> %s\n", job.PreparedInputs[i])
		}
	}
	if len(job.Command.Args) > 0 {
		fmt.Fprintf(out, "  Args:    %s\n", strings.Join(job.Command.Args, " "))
	}
	if len(job.Command.Outputs) > 0 {
		names := make([]string, len(job.Command.Outputs))
		for i, output := range job.Command.Outputs {
			names[i] = output.BaseName + "." + output.Ext
		}
		fmt.Fprintf(out, "  Outputs: %s\n", strings.Join(names, ", "))
	}
	if job.Command.OutputFolder != "" {
		fmt.Fprintf(out, "  Folder:  %s\n", job.Command.OutputFolder)
	}
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show job counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(queue.AllStatuses()))
				for _, status := range queue.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[string(status)])})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newQueueCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a queued job or interrupt its preparation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				outcome, err := q.Cancel(cmd.Context(), id)
				if errors.Is(err, queue.ErrJobNotFound) {
					return fmt.Errorf("job %d not found", id)
				}
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch workflow.CancelOutcome(outcome) {
				case workflow.CancelInterrupted:
					fmt.Fprintf(out, "Job %d: preparation interrupted\n", id)
				case workflow.CancelDequeued:
					fmt.Fprintf(out, "Job %d cancelled\n", id)
				default:
					fmt.Fprintf(out, "Job %d is not queued or preparing; nothing to cancel\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Re-queue failed or cancelled jobs (all failed jobs when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				result, err := q.RetryJobs(cmd.Context(), ids)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(result.Jobs) == 0 {
					fmt.Fprintln(out, "No failed jobs to retry")
					return nil
				}
				for _, job := range result.Jobs {
					switch job.Outcome {
					case api.RetryJobUpdated:
						fmt.Fprintf(out, "Job %d re-queued\n", job.ID)
					case api.RetryJobNotFound:
						fmt.Fprintf(out, "Job %d not found\n", job.ID)
					default:
						fmt.Fprintf(out, "Job %d is %s; only failed or cancelled jobs can be retried\n", job.ID, job.PriorStatus)
					}
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>...",
		Short: "Remove jobs and their working directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd.Context(), func(q queueAPI) error {
				result, err := q.RemoveJobs(cmd.Context(), ids)
				if err != nil {
					return err
				}
				for _, job := range result.Jobs {
					switch job.Outcome {
					case api.RemoveJobRemoved:
						fmt.Fprintf(cmd.OutOrStdout(), "Job %d removed\n", job.ID)
					case api.RemoveJobBusy:
						fmt.Fprintf(cmd.OutOrStdout(), "Job %d is being prepared; cancel it first\n", job.ID)
					default:
						fmt.Fprintf(cmd.OutOrStdout(), "Job %d not found\n", job.ID)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var completed bool
	var failed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete jobs from the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if completed && failed {
				return errors.New("--completed and --failed are mutually exclusive")
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var removed int64
				var err error
				var what string
				switch {
				case completed:
					removed, err = store.ClearCompleted(cmd.Context())
					what = "completed "
				case failed:
					removed, err = store.ClearFailed(cmd.Context())
					what = "failed "
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %sjob(s)\n", removed, what)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "Only remove completed jobs")
	cmd.Flags().BoolVar(&failed, "failed", false, "Only remove failed jobs")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check the queue database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Database:    %s\n", db.DBPath)
				fmt.Fprintf(out, "Readable:    %s\n", yesNo(db.DatabaseReadable))
				fmt.Fprintf(out, "Schema:      %d\n", db.SchemaVersion)
				fmt.Fprintf(out, "Integrity:   %s\n", yesNo(db.IntegrityCheck))
				fmt.Fprintf(out, "Total:       %d\n", summary.Total)
				fmt.Fprintf(out, "Queued:      %d\n", summary.Queued)
				fmt.Fprintf(out, "Active:      %d\n", summary.Active)
				fmt.Fprintf(out, "Ready:       %d\n", summary.Ready)
				fmt.Fprintf(out, "Failed:      %d\n", summary.Failed)
				fmt.Fprintf(out, "Completed:   %d\n", summary.Completed)
				fmt.Fprintf(out, "Cancelled:   %d\n", summary.Cancelled)
				if db.Error != "" {
					fmt.Fprintf(out, "Error:       %s\n", db.Error)
				}
				return nil
			})
		},
	}
}

func parseJobID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid job id %q", value)
	}
	return id, nil
}

func parseJobIDs(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, value := range values {
		id, err := parseJobID(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
