package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ytreport/internal/api"
	"ytreport/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var format string
	var instructions string
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report <video-id>",
		Short: "Generate a report for a processed video",
		Long: fmt.Sprintf("Generate a report for a processed video.\n\nFormats: %s",
			strings.Join(formatNames(), ", ")),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := parseID(args[0], "video")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				runID, err := client.GenerateReport(cmd.Context(), api.GenerateReportRequest{
					VideoID:            videoID,
					FormatType:         strings.TrimSpace(format),
					CustomInstructions: strings.TrimSpace(instructions),
				})
				if err != nil {
					return err
				}
				if !wait {
					if asJSON {
						return writeJSON(cmd, api.RunSubmittedResponse{RunID: runID})
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Queued run %s\n", runID)
					return nil
				}
				run, err := waitForRun(cmd.Context(), client, runID)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, run)
				}
				return finishRun(cmd.OutOrStdout(), run)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatSummary), "Report format")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Extra instructions for the report writer")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReportListCommand(ctx *commandContext) *cobra.Command {
	var videoID int64
	var format string
	var limit int
	var offset int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report-list",
		Short: "List generated reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				reports, err := client.ListReports(cmd.Context(), api.ReportQuery{
					VideoID:    videoID,
					FormatType: strings.TrimSpace(format),
					Limit:      limit,
					Offset:     offset,
				})
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, reports)
				}
				out := cmd.OutOrStdout()
				if len(reports) == 0 {
					fmt.Fprintln(out, "No reports")
					return nil
				}
				rows := make([][]string, 0, len(reports))
				for _, r := range reports {
					rows = append(rows, []string{
						strconv.FormatInt(r.ID, 10),
						strconv.FormatInt(r.VideoID, 10),
						r.FormatType,
						r.Title,
						r.CreatedAt,
					})
				}
				fmt.Fprint(out, renderTable([]column{
					{Header: "ID", Align: alignRight},
					{Header: "Video", Align: alignRight},
					{Header: "Format"},
					{Header: "Title", MaxWidth: 60},
					{Header: "Created"},
				}, rows))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&videoID, "video-id", 0, "Only reports for this video")
	cmd.Flags().StringVar(&format, "format", "", "Only reports of this format")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of reports")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of reports to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReportShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "report-show <report-id>",
		Short: "Print a generated report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				r, err := client.GetReport(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, r)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n\n", r.Title)
				fmt.Fprintln(out, strings.TrimSpace(r.Content))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newReportDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report-delete <report-id>",
		Short: "Delete a generated report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "report")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteReport(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Report %d deleted\n", id)
				return nil
			})
		},
	}
}

func formatNames() []string {
	names := make([]string, 0, len(report.Formats))
	for _, f := range report.Formats {
		names = append(names, string(f))
	}
	return names
}

func parseID(value, noun string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", noun, value)
	}
	return id, nil
}
