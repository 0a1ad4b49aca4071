package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
)

func newStagingCommand(ctx *commandContext) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect and clean job working directories",
	}
	stagingCmd.AddCommand(newStagingListCommand(ctx))
	stagingCmd.AddCommand(newStagingCleanCommand(ctx))
	return stagingCmd
}

func newStagingListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List job working directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dirs, err := staging.ListDirectories(cfg.Paths.StagingDir)
			if err != nil {
				return fmt.Errorf("list staging directories: %w", err)
			}
			var total int64
			for _, dir := range dirs {
				total += dir.Size
			}
			if jsonOutput {
				if dirs == nil {
					dirs = []staging.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"staging_dir":      cfg.Paths.StagingDir,
					"directories":      dirs,
					"total_size_bytes": total,
				})
			}
			out := cmd.OutOrStdout()
			if len(dirs) == 0 {
				fmt.Fprintln(out, "No job directories found")
				return nil
			}
			fmt.Fprintf(out, "Staging directory: %s\n", cfg.Paths.StagingDir)
			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				rows = append(rows, []string{
					strconv.FormatInt(dir.JobID, 10),
					dir.Name,
					humanize.Time(dir.ModTime),
					humanize.Bytes(uint64(dir.Size)),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Job", "Directory", "Modified", "Size"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), humanize.Bytes(uint64(total)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newStagingCleanCommand(ctx *commandContext) *cobra.Command {
	var stale bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove job directories of jobs that no longer exist",
		Long: `Remove job directories whose job is no longer in the queue.

With --stale, also remove directories older than workflow.staging_max_age_hours
regardless of their job's status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				keep, err := store.JobIDs(cmd.Context())
				if err != nil {
					return err
				}
				logger := logging.NewNop()
				result := staging.CleanOrphaned(cmd.Context(), cfg.Paths.StagingDir, keep, logger)
				if stale {
					staleResult := staging.CleanStale(cmd.Context(), cfg.Paths.StagingDir, cfg.StagingMaxAge(), logger)
					result.Removed = append(result.Removed, staleResult.Removed...)
					result.Errors = append(result.Errors, staleResult.Errors...)
				}
				out := cmd.OutOrStdout()
				for _, path := range result.Removed {
					fmt.Fprintf(out, "Removed %s\n", path)
				}
				for _, failure := range result.Errors {
					fmt.Fprintf(cmd.ErrOrStderr(), "Failed to remove %s: %v\n", failure.Path, failure.Error)
				}
				fmt.Fprintf(out, "Removed %d directories\n", len(result.Removed))
				if len(result.Errors) > 0 {
					return fmt.Errorf("%d directories could not be removed", len(result.Errors))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&stale, "stale", false, "Also remove directories older than the configured maximum age")
	return cmd
}
