package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ytreport/internal/api"
	"ytreport/internal/workflow"
)

const runPollInterval = 500 * time.Millisecond

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Inspect and control workflow runs",
	}
	cmd.AddCommand(newRunShowCommand(ctx))
	cmd.AddCommand(newRunListCommand(ctx))
	cmd.AddCommand(newRunCancelCommand(ctx))
	return cmd
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show a run with its stage history and context",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				run, err := client.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				printRun(cmd.OutOrStdout(), run, true)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRunListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range statuses {
				if _, ok := workflow.ParseRunStatus(strings.TrimSpace(s)); !ok {
					return fmt.Errorf("unknown run status %q", s)
				}
			}
			return ctx.withClient(func(client *api.Client) error {
				runs, err := client.ListRuns(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, runs)
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						run.Graph,
						runStatusLabel(run),
						run.CurrentStage,
						run.UpdatedAt,
					})
				}
				fmt.Fprint(out, renderTable([]column{
					{Header: "ID"},
					{Header: "Graph"},
					{Header: "Status"},
					{Header: "Stage"},
					{Header: "Updated"},
				}, rows))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Only show runs with these statuses")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newRunCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <run-id>",
		Short: "Cancel a pending or running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := strings.TrimSpace(args[0])
			return ctx.withClient(func(client *api.Client) error {
				if err := client.CancelRun(cmd.Context(), runID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %s cancelled\n", runID)
				return nil
			})
		},
	}
}

// waitForRun polls until the run reaches a terminal status.
func waitForRun(ctx context.Context, client *api.Client, runID string) (api.Run, error) {
	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()
	for {
		run, err := client.GetRun(ctx, runID)
		if err != nil {
			return api.Run{}, err
		}
		if status, ok := workflow.ParseRunStatus(run.Status); ok && status.IsTerminal() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return api.Run{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// finishRun prints the outcome of a waited run and turns failure into an error.
func finishRun(out io.Writer, run api.Run) error {
	printRun(out, run, false)
	if run.Status == string(workflow.RunFailed) {
		return fmt.Errorf("run %s failed at %s", run.ID, run.FailedStage)
	}
	return nil
}

func runStatusLabel(run api.Run) string {
	if run.Degraded && run.Status != string(workflow.RunPartiallySucceeded) {
		return run.Status + " (degraded)"
	}
	return run.Status
}

func printRun(out io.Writer, run api.Run, detail bool) {
	fmt.Fprintf(out, "Run:      %s\n", run.ID)
	fmt.Fprintf(out, "Graph:    %s\n", run.Graph)
	fmt.Fprintf(out, "Status:   %s\n", runStatusLabel(run))
	if run.CurrentStage != "" {
		fmt.Fprintf(out, "Stage:    %s\n", run.CurrentStage)
	}
	if run.ErrorMessage != "" {
		fmt.Fprintf(out, "Error:    [%s] %s\n", run.ErrorKind, run.ErrorMessage)
		if run.ErrorHint != "" {
			fmt.Fprintf(out, "Hint:     %s\n", run.ErrorHint)
		}
	}
	if !detail {
		return
	}
	if len(run.History) > 0 {
		rows := make([][]string, 0, len(run.History))
		for _, attempt := range run.History {
			message := attempt.ErrorMessage
			if attempt.ErrorKind != "" {
				message = "[" + attempt.ErrorKind + "] " + message
			}
			rows = append(rows, []string{
				attempt.Stage,
				strconv.Itoa(attempt.Attempt),
				attempt.Outcome,
				message,
			})
		}
		fmt.Fprintln(out)
		fmt.Fprint(out, renderTable([]column{
			{Header: "Stage"},
			{Header: "Attempt", Align: alignRight},
			{Header: "Outcome"},
			{Header: "Error", MaxWidth: 60},
		}, rows))
		fmt.Fprintln(out)
	}
	if len(run.Context) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Context:")
		for _, entry := range run.Context {
			fmt.Fprintf(out, "  %s (%s): %s\n", entry.Key, entry.Writer, truncate(string(entry.Value), 120))
		}
	}
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
