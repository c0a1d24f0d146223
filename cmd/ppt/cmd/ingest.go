package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func ingestCmd() *cobra.Command {
	ingestRoot := &cobra.Command{
		Use:   "ingest",
		Short: "Push snapshots or trigger a feed cycle",
	}

	ingestRoot.AddCommand(
		ingestPushCmd(),
		ingestTriggerCmd(),
	)

	return ingestRoot
}

func ingestPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push <file.json>...",
		Short: "Upsert listings from snapshot files",
		Long: "Each file holds one snapshot object or an array of them. Snapshots are\n" +
			"sent one at a time; a failure is reported and the rest still run.",
		Example: `  ppt ingest push W1234567.json
  ppt ingest push -p commercial batch.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			c := newClient()
			ctx := context.Background()

			failed := 0
			for _, path := range args {
				docs, err := readSnapshots(path)
				if err != nil {
					return err
				}
				for _, doc := range docs {
					res, err := c.UpsertListing(ctx, p, doc)
					if err != nil {
						failed++
						fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
						continue
					}
					if jsonOutput() {
						if err := outputJSON(res); err != nil {
							return err
						}
						continue
					}
					fmt.Printf("%s\t%s\thistory_appended=%t\n", res.MLS, res.Classification, res.HistoryAppended)
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d snapshots failed", failed)
			}
			return nil
		},
	}
}

// readSnapshots splits a file into raw snapshot documents.
func readSnapshots(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}

	var many []json.RawMessage
	if err := json.Unmarshal(data, &many); err == nil {
		return many, nil
	}

	var one json.RawMessage
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return []json.RawMessage{one}, nil
}

func ingestTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Run one feed cycle on the server",
		Long:  "Blocks until the cycle finishes. Fails with a conflict if a cycle is already running.",
		RunE: func(_ *cobra.Command, _ []string) error {
			report, err := newClient().TriggerIngestion(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(report)
			}
			return printCycleReport(os.Stdout, report)
		},
	}
}
