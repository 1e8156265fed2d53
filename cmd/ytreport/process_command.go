package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"ytreport/internal/api"
)

func newProcessCommand(ctx *commandContext) *cobra.Command {
	var language string
	var wait bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "process <youtube-url>",
		Short: "Fetch, analyze, and store a YouTube video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				runID, err := client.ProcessVideo(cmd.Context(), api.ProcessVideoRequest{
					URL:      strings.TrimSpace(args[0]),
					Language: strings.TrimSpace(language),
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
	cmd.Flags().StringVar(&language, "language", "", "Preferred transcript language (defaults to youtube.language)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
