package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	timelinePageSize  int
	timelinePageToken string
)

var timelineCmd = &cobra.Command{
	Use:   "timeline <eventNo>",
	Short: "List the version timeline of an event, newest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		path := fmt.Sprintf("%s/events/%s/timeline?pageSize=%d", versioningAPIBase, args[0], timelinePageSize)
		if timelinePageToken != "" {
			path += "&pageToken=" + timelinePageToken
		}

		var timeline timelineResponse
		if err := client.getJSON(path, &timeline); err != nil {
			return fmt.Errorf("failed to fetch timeline: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(timeline)
		}

		rows := make([][]string, len(timeline.Versions))
		for i, v := range timeline.Versions {
			current := ""
			if v.IsCurrent {
				current = "*"
			}
			rows[i] = []string{v.VersionCode, v.Status, current, v.CreatedBy, v.CreatedAt, v.PublishedAt, v.ID}
		}
		printTable([]string{"code", "status", "current", "createdBy", "createdAt", "publishedAt", "id"}, rows)
		if timeline.NextPageToken != "" {
			fmt.Printf("\nNext page: --page-token %s\n", timeline.NextPageToken)
		}
		return nil
	},
}

func init() {
	timelineCmd.Flags().IntVar(&timelinePageSize, "page-size", 20, "Versions per page")
	timelineCmd.Flags().StringVar(&timelinePageToken, "page-token", "", "Continuation token from a previous page")
}
