package main

import (
	"context"
	"fmt"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"mediaconv/internal/bus"
	"mediaconv/internal/config"
	"mediaconv/internal/content"
	"mediaconv/internal/daemon"
	"mediaconv/internal/engine"
	"mediaconv/internal/fetch"
	"mediaconv/internal/jobstate"
	"mediaconv/internal/logging"
	"mediaconv/internal/materialize"
	"mediaconv/internal/notifications"
	"mediaconv/internal/queue"
	"mediaconv/internal/staging"
	"mediaconv/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or inspect the preparation daemon",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runDaemon(signalCtx, cfg)
		},
	}
}

// runDaemon wires the preparation pipeline and blocks until ctx is done.
func runDaemon(ctx context.Context, cfg *config.Config) error {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}

	router, err := content.NewFromConfig(cfg)
	if err != nil {
		store.Close()
		return fmt.Errorf("content stores: %w", err)
	}

	var client *bus.Client
	var eng engine.Engine = engine.NewLogEngine(logger)
	if url := strings.TrimSpace(cfg.Bus.NATSURL); url != "" {
		client, err = bus.Connect(url, logger)
		if err != nil {
			store.Close()
			return fmt.Errorf("connect bus: %w", err)
		}
		eng = engine.NewBusEngine(client, cfg.Bus.ReadySubject, cfg.Bus.FailedSubject)
	}

	bridge := jobstate.New(store, logger)
	downloader := fetch.New(fetch.Config{
		UserAgent:      cfg.Download.UserAgent,
		ConnectTimeout: cfg.ConnectTimeout(),
	})
	materializer := materialize.New(router, materialize.FetchEngine{Downloader: downloader}, bridge, materialize.Options{
		PollInterval: cfg.DownloadPollInterval(),
		Logger:       logger,
	})
	notifier := notifications.NewService(cfg)

	manager := workflow.NewManager(cfg, workflow.Dependencies{
		Store:        store,
		Paths:        staging.NewResolver(cfg.Paths.StagingDir),
		States:       bridge,
		Materializer: materializer,
		Engine:       eng,
		Notifier:     notifier,
	}, logger)

	opts := []daemon.Option{daemon.WithNotifier(notifier)}
	if client != nil {
		opts = append(opts, daemon.WithBus(client))
	}
	d, err := daemon.New(cfg, store, logger, manager, opts...)
	if err != nil {
		bridge.Close()
		client.Close()
		store.Close()
		return err
	}
	// The bridge drains pending writes after the worker stops and before
	// Close releases the store.
	defer func() {
		d.Stop()
		bridge.Close()
		_ = d.Close()
	}()

	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
	return nil
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			base := ctx.apiBaseURL(cfg)
			status, err := newDaemonClient(base).Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("daemon not reachable at %s: %w", base, err)
			}
			if jsonOutput {
				return writeJSON(cmd, status)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Daemon:      running (pid %d)\n", status.PID)
			fmt.Fprintf(out, "API:         %s\n", base)
			fmt.Fprintf(out, "Queue DB:    %s\n", status.QueueDBPath)
			fmt.Fprintf(out, "Bus:         %s\n", connectedLabel(status.BusConnected))
			wf := status.Workflow
			fmt.Fprintf(out, "Worker:      %s\n", runningLabel(wf.Running))
			if wf.CurrentJobID > 0 {
				fmt.Fprintf(out, "Preparing:   job %d for %.1fs\n", wf.CurrentJobID, wf.CurrentForSeconds)
			}
			if wf.LastError != "" {
				fmt.Fprintf(out, "Last error:  %s\n", wf.LastError)
			}
			names := make([]string, 0, len(wf.QueueStats))
			for name := range wf.QueueStats {
				names = append(names, name)
			}
			sort.Strings(names)
			parts := make([]string, 0, len(names))
			for _, name := range names {
				if wf.QueueStats[name] > 0 {
					parts = append(parts, fmt.Sprintf("%s=%d", name, wf.QueueStats[name]))
				}
			}
			if len(parts) == 0 {
				parts = append(parts, "empty")
			}
			fmt.Fprintf(out, "Queue:       %s\n", strings.Join(parts, " "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func connectedLabel(connected bool) string {
	if connected {
		return "connected"
	}
	return "not connected"
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
