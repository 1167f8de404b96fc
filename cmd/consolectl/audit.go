package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var auditPageSize int

var auditCmd = &cobra.Command{
	Use:   "audit <eventNo>",
	Short: "List the versioning audit trail of an event",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		path := fmt.Sprintf("%s/events/%s/audit?pageSize=%d", versioningAPIBase, args[0], auditPageSize)
		var listing auditListing
		if err := client.getJSON(path, &listing); err != nil {
			return fmt.Errorf("failed to fetch audit trail: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(listing)
		}

		rows := make([][]string, len(listing.Events))
		for i, e := range listing.Events {
			rows[i] = []string{e.CreatedAt, e.Action, e.Outcome, e.Actor, e.VersionID}
		}
		printTable([]string{"time", "action", "outcome", "actor", "versionId"}, rows)
		return nil
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditPageSize, "page-size", 20, "Audit events per page")
}
