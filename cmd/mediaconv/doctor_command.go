package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediaconv/internal/notifications"
	"mediaconv/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the queue database and configured services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			for _, result := range results {
				kind := checkOK
				if !result.Passed {
					kind = checkError
				}
				fmt.Fprintln(out, renderCheckLine(result.Name, kind, result.Detail, colorize))
			}
			base := ctx.apiBaseURL(cfg)
			if newDaemonClient(base).reachable(cmd.Context()) {
				fmt.Fprintln(out, renderCheckLine("Daemon", checkInfo, "running at "+base, colorize))
			} else {
				fmt.Fprintln(out, renderCheckLine("Daemon", checkInfo, "not running", colorize))
			}

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not configured")
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
