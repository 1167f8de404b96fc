package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	outputFmt string
	actor     string
)

var rootCmd = &cobra.Command{
	Use:   "consolectl",
	Short: "CLI for the rule console versioning server",
	Long: `consolectl manages event configuration versions on the rule console server.

It covers the full draft lifecycle (open, edit, save, publish, discard) plus
timeline inspection, rollback, status transitions, and version diffs.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Console server URL")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&actor, "as", "", "Acting identity sent as X-User-Principal (default: CONSOLE_USER env or OS user)")

	rootCmd.AddCommand(timelineCmd)
	rootCmd.AddCommand(draftCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(auditCmd)
}

// resolvedActor returns the effective acting identity.
// Priority: --as flag > CONSOLE_USER env var > OS user.
func resolvedActor() string {
	if actor != "" {
		return actor
	}
	if u := os.Getenv("CONSOLE_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "consolectl"
}
