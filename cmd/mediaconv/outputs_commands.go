package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/outputs"
	"mediaconv/internal/queue"
)

func newOutputsCommand(ctx *commandContext) *cobra.Command {
	outputsCmd := &cobra.Command{
		Use:   "outputs",
		Short: "Plan output file names",
	}
	outputsCmd.AddCommand(newOutputsPlanCommand(ctx))
	outputsCmd.AddCommand(newOutputsJobCommand(ctx))
	return outputsCmd
}

func newOutputsPlanCommand(ctx *commandContext) *cobra.Command {
	var folder string
	var renames []string
	var overrides []int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan <name.ext>...",
		Short: "Allocate non-colliding output names in a folder",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			specs := make([]queue.OutputSpec, 0, len(args))
			for _, arg := range args {
				spec, err := parseOutputSpec(arg)
				if err != nil {
					return err
				}
				specs = append(specs, spec)
			}

			session := outputs.NewSession(cfg.Paths.OutputDir, logging.NewNop())
			defer session.Close()

			if err := session.SetOutputFolder(strings.TrimSpace(folder)); err != nil {
				return err
			}
			if err := session.SetCommand(specs); err != nil {
				return err
			}
			for _, value := range renames {
				index, name, err := parseRename(value)
				if err != nil {
					return err
				}
				if err := session.Rename(cmd.Context(), index, name); err != nil {
					return fmt.Errorf("rename output %d: %w", index, err)
				}
			}
			for _, index := range overrides {
				if err := session.SetOverrideAllowed(cmd.Context(), index, true); err != nil {
					return fmt.Errorf("allow override for output %d: %w", index, err)
				}
			}
			if err := session.Flush(cmd.Context()); err != nil {
				return err
			}
			snapshot := session.Snapshot()
			validateErr := session.Validate(cmd.Context())

			if jsonOutput {
				if err := writeJSON(cmd, snapshot); err != nil {
					return err
				}
				return validateErr
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Folder: %s\n", snapshot.Folder)
			rows := make([][]string, 0, len(snapshot.Files))
			for i, file := range snapshot.Files {
				rows = append(rows, []string{
					strconv.Itoa(i),
					file.FileName,
					yesNo(file.IsConflict),
					yesNo(file.IsOverrideAllowed),
				})
			}
			fmt.Fprint(out, renderTable(
				[]string{"#", "File", "Conflict", "Override"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft},
			))
			fmt.Fprintln(out)
			return validateErr
		},
	}
	cmd.Flags().StringVarP(&folder, "folder", "f", "", "Destination folder (defaults to paths.output_dir)")
	cmd.Flags().StringArrayVar(&renames, "rename", nil, "Rename an output as index=name.ext (repeatable)")
	cmd.Flags().IntSliceVar(&overrides, "allow-override", nil, "Allow the output at index to replace an existing file")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func parseRename(value string) (int, string, error) {
	left, right, ok := strings.Cut(value, "=")
	if !ok {
		return 0, "", fmt.Errorf("invalid rename %q: expected index=name", value)
	}
	index, err := strconv.Atoi(strings.TrimSpace(left))
	if err != nil {
		return 0, "", fmt.Errorf("invalid rename index %q", left)
	}
	name := strings.TrimSpace(right)
	if name == "" {
		return 0, "", fmt.Errorf("invalid rename %q: empty name", value)
	}
	return index, name, nil
}

func newOutputsJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Show the output paths a queued job would be handed off with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				job, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %d not found", id)
				}
				paths, err := outputs.PlanForJob(cmd.Context(), job, cfg.Paths.OutputDir)
				if err != nil {
					return err
				}
				if len(paths) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "Job %d declares no outputs\n", id)
					return nil
				}
				for _, path := range paths {
					fmt.Fprintln(cmd.OutOrStdout(), filepath.Clean(path))
				}
				return nil
			})
		},
	}
}
