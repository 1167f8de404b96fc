package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"

	"github.com/spf13/cobra"
)

var draftCmd = &cobra.Command{
	Use:   "draft",
	Short: "Manage the in-progress draft of an event",
}

var draftOpenCmd = &cobra.Command{
	Use:   "open <eventNo>",
	Short: "Open the event's draft, creating one if none exists",
	Long: `Open the event's draft for editing.

If no draft exists, a new one is created seeded from the currently live
configuration (or empty if the event was never published). Opening an
existing draft returns it as-is.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var draft draftResponse
		path := fmt.Sprintf("%s/events/%s/draft", versioningAPIBase, args[0])
		if err := client.do(http.MethodPost, path, nil, &draft); err != nil {
			return fmt.Errorf("failed to open draft: %w", err)
		}
		return printDraft(draft)
	},
}

var draftEditCmd = &cobra.Command{
	Use:   "edit <draftID> <section> <file>",
	Short: "Replace one payload section of a draft from a JSON file",
	Long: `Replace a payload section (basicInfo, fieldConfig, statementConfig,
indicatorConfig) of the draft with the JSON document in <file>. Use "-"
to read from stdin. The change is staged on the server session; run
"draft save" to persist it.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		draftID, section, file := args[0], args[1], args[2]

		var blob []byte
		var err error
		if file == "-" {
			blob, err = io.ReadAll(os.Stdin)
		} else {
			blob, err = os.ReadFile(file)
		}
		if err != nil {
			return fmt.Errorf("failed to read section payload: %w", err)
		}

		client := newClient()
		var draft draftResponse
		path := fmt.Sprintf("%s/drafts/%s/sections/%s", versioningAPIBase, draftID, section)
		if err := client.doRaw(http.MethodPatch, path, blob, &draft); err != nil {
			return fmt.Errorf("failed to apply edit: %w", err)
		}
		return printDraft(draft)
	},
}

var draftSaveCmd = &cobra.Command{
	Use:   "save <draftID>",
	Short: "Persist the draft's staged edits",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var draft draftResponse
		path := fmt.Sprintf("%s/drafts/%s/save", versioningAPIBase, args[0])
		if err := client.do(http.MethodPost, path, nil, &draft); err != nil {
			return fmt.Errorf("failed to save draft: %w", err)
		}
		return printDraft(draft)
	},
}

var draftPublishCmd = &cobra.Command{
	Use:   "publish <draftID>",
	Short: "Publish the draft, making it the live configuration",
	Long: `Publish the saved draft. The draft becomes the event's ACTIVE version
and the previously live version (if any) is archived in the same step.
Fails if the draft has staged edits that were not saved.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var published versionSummary
		path := fmt.Sprintf("%s/drafts/%s/publish", versioningAPIBase, args[0])
		if err := client.do(http.MethodPost, path, nil, &published); err != nil {
			return fmt.Errorf("failed to publish draft: %w", err)
		}

		if outputFmt != "table" {
			return printOutput(published)
		}
		fmt.Printf("Published %s as %s (version %s)\n", published.EventNo, published.Status, published.VersionCode)
		return nil
	},
}

var draftDiscardCmd = &cobra.Command{
	Use:   "discard <draftID>",
	Short: "Delete the draft without publishing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		path := fmt.Sprintf("%s/drafts/%s", versioningAPIBase, args[0])
		if err := client.do(http.MethodDelete, path, nil, nil); err != nil {
			return fmt.Errorf("failed to discard draft: %w", err)
		}
		fmt.Println("Draft discarded")
		return nil
	},
}

func init() {
	draftCmd.AddCommand(draftOpenCmd)
	draftCmd.AddCommand(draftEditCmd)
	draftCmd.AddCommand(draftSaveCmd)
	draftCmd.AddCommand(draftPublishCmd)
	draftCmd.AddCommand(draftDiscardCmd)
}

func printDraft(draft draftResponse) error {
	if outputFmt != "table" {
		return printOutput(draft)
	}

	fmt.Printf("Draft %s (event %s, code %s)\n", draft.ID, draft.EventNo, draft.VersionCode)
	if draft.HasUnsavedChanges {
		fmt.Println("Unsaved changes: yes")
	}

	sections := make([]string, 0, len(draft.Payload))
	for section := range draft.Payload {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	rows := make([][]string, len(sections))
	for i, section := range sections {
		rows[i] = []string{section, fmt.Sprintf("%d bytes", len(draft.Payload[section]))}
	}
	printTable([]string{"section", "size"}, rows)
	return nil
}
