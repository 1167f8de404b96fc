package main

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Inspect and manage published versions",
}

var versionRollbackCmd = &cobra.Command{
	Use:   "rollback <versionID>",
	Short: "Restore a historical version as the live configuration",
	Long: `Publish a new version whose payload is copied from the given historical
version. The target version itself is never modified; the restored copy
gets a fresh version code and becomes ACTIVE.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var restored versionSummary
		path := fmt.Sprintf("%s/versions/%s/rollback", versioningAPIBase, args[0])
		if err := client.do(http.MethodPost, path, nil, &restored); err != nil {
			return fmt.Errorf("failed to roll back: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(restored)
		}
		fmt.Printf("Restored %s as version %s (id %s)\n", restored.EventNo, restored.VersionCode, restored.ID)
		return nil
	},
}

var versionTransitionCmd = &cobra.Command{
	Use:   "transition <versionID> <status>",
	Short: "Move a published version to approved or archived",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var updated versionSummary
		path := fmt.Sprintf("%s/versions/%s/transition", versioningAPIBase, args[0])
		body := map[string]string{"status": args[1]}
		if err := client.do(http.MethodPost, path, body, &updated); err != nil {
			return fmt.Errorf("failed to transition version: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(updated)
		}
		fmt.Printf("Version %s is now %s\n", updated.VersionCode, updated.Status)
		return nil
	},
}

var versionDiffCmd = &cobra.Command{
	Use:   "diff <versionA> <versionB>",
	Short: "Summarize payload differences between two versions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var diff diffResponse
		path := fmt.Sprintf("%s/versions/%s/diff/%s", versioningAPIBase, args[0], args[1])
		if err := client.getJSON(path, &diff); err != nil {
			return fmt.Errorf("failed to diff versions: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(diff)
		}

		if len(diff.Sections) == 0 {
			fmt.Println("No differences")
			return nil
		}
		rows := make([][]string, len(diff.Sections))
		for i, s := range diff.Sections {
			ops := ""
			if s.Ops > 0 {
				ops = fmt.Sprintf("%d", s.Ops)
			}
			rows[i] = []string{s.Section, s.Change, ops}
		}
		printTable([]string{"section", "change", "ops"}, rows)
		return nil
	},
}

func init() {
	versionCmd.AddCommand(versionRollbackCmd)
	versionCmd.AddCommand(versionTransitionCmd)
	versionCmd.AddCommand(versionDiffCmd)
}
