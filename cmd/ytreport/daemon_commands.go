package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ytreport/internal/api"
	"ytreport/internal/daemonctl"
	"ytreport/internal/daemonrun"
	"ytreport/internal/preflight"
)

const (
	startTimeout    = 15 * time.Second
	stopGracePeriod = 10 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newServeCommand(ctx),
		newStartCommand(ctx),
		newStopCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{LogLevel: logLevel})
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for this process")
	return cmd
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	var logLevel string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.RequireLLMKeys(); err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			launch := func() error {
				return daemonctl.Launch(exe, daemonctl.LaunchOptions{ConfigPath: ctx.configFlagValue(), LogLevel: logLevel})
			}
			res, err := daemonctl.EnsureStarted(cmd.Context(), client, launch, startTimeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch res.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", res.PID)
			default:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", res.PID)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level for the daemon")
	return cmd
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			res, err := daemonctl.StopAndTerminate(cmd.Context(), client, daemonrun.PIDPath(cfg), stopGracePeriod)
			out := cmd.OutOrStdout()
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if res.ForcedKill {
				fmt.Fprintf(out, "Daemon did not stop in time; killed pid %d\n", res.PID)
				return nil
			}
			fmt.Fprintf(out, "Daemon stopped (pid %d)\n", res.PID)
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var check bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status and, with --check, dependency checks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			status, statusErr := client.Status(cmd.Context())
			if statusErr != nil && !api.IsAPIUnavailable(statusErr) {
				return wrapAPIError(statusErr)
			}
			var checks []preflight.Result
			if check {
				checkCtx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				checks = preflight.RunAll(checkCtx, cfg)
			}

			if asJSON {
				payload := statusPayload{Checks: checks}
				if statusErr == nil {
					payload.Daemon = &status
				}
				return writeJSON(cmd, payload)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			var daemonStatus *api.DaemonStatus
			if statusErr == nil {
				daemonStatus = &status
			}
			for _, line := range statusLines(daemonStatus, colorize) {
				fmt.Fprintln(out, line)
			}
			if check {
				fmt.Fprintln(out)
				for _, line := range checkLines(checks, colorize) {
					fmt.Fprintln(out, line)
				}
				if failed := preflight.Failed(checks); len(failed) > 0 {
					return fmt.Errorf("%d dependency checks failed", len(failed))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "Also probe YouTube and the configured models")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

type statusPayload struct {
	Daemon *api.DaemonStatus  `json:"daemon,omitempty"`
	Checks []preflight.Result `json:"checks,omitempty"`
}
