package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"ytreport/internal/api"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "video",
		Short: "Browse processed videos",
	}
	cmd.AddCommand(newVideoListCommand(ctx))
	cmd.AddCommand(newVideoShowCommand(ctx))
	cmd.AddCommand(newVideoDeleteCommand(ctx))
	return cmd
}

func newVideoListCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var offset int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List processed videos, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *api.Client) error {
				videos, err := client.ListVideos(cmd.Context(), limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, videos)
				}
				out := cmd.OutOrStdout()
				if len(videos) == 0 {
					fmt.Fprintln(out, "No videos")
					return nil
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					rows = append(rows, []string{
						strconv.FormatInt(v.ID, 10),
						v.YouTubeID,
						v.Title,
						v.Category,
						yesNo(v.Processed),
					})
				}
				fmt.Fprint(out, renderTable([]column{
					{Header: "ID", Align: alignRight},
					{Header: "YouTube"},
					{Header: "Title", MaxWidth: 50},
					{Header: "Category", MaxWidth: 24},
					{Header: "Processed"},
				}, rows))
				fmt.Fprintln(out)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of videos")
	cmd.Flags().IntVar(&offset, "offset", 0, "Number of videos to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newVideoShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var transcript bool
	cmd := &cobra.Command{
		Use:   "show <video-id>",
		Short: "Show a video's analysis and segments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "video")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				v, err := client.GetVideo(cmd.Context(), id)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, v)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Video:     %d (%s)\n", v.ID, v.YouTubeID)
				fmt.Fprintf(out, "Title:     %s\n", v.Title)
				if v.ChannelName != "" {
					fmt.Fprintf(out, "Channel:   %s\n", v.ChannelName)
				}
				fmt.Fprintf(out, "URL:       %s\n", v.URL)
				fmt.Fprintf(out, "Category:  %s\n", v.Category)
				if len(v.Topics) > 0 {
					fmt.Fprintf(out, "Topics:    %s\n", strings.Join(v.Topics, ", "))
				}
				fmt.Fprintf(out, "Processed: %s\n", yesNo(v.Processed))
				if v.Summary != "" {
					fmt.Fprintf(out, "\n%s\n", v.Summary)
				}
				if len(v.Segments) > 0 {
					rows := make([][]string, 0, len(v.Segments))
					for _, s := range v.Segments {
						rows = append(rows, []string{
							fmt.Sprintf("%.0f-%.0f", s.StartTime, s.EndTime),
							s.Subcategory,
							s.ContentSummary,
						})
					}
					fmt.Fprintln(out)
					fmt.Fprint(out, renderTable([]column{
						{Header: "Seconds"},
						{Header: "Subcategory", MaxWidth: 24},
						{Header: "Summary", MaxWidth: 70},
					}, rows))
					fmt.Fprintln(out)
				}
				if transcript && v.Transcript != "" {
					fmt.Fprintf(out, "\nTranscript:\n%s\n", v.Transcript)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&transcript, "transcript", false, "Also print the full transcript")
	return cmd
}

func newVideoDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <video-id>",
		Short: "Delete a video with its segments and reports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "video")
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *api.Client) error {
				if err := client.DeleteVideo(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Video %d deleted\n", id)
				return nil
			})
		},
	}
}
