package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func partitionsCmd() *cobra.Command {
	partitionsRoot := &cobra.Command{
		Use:   "partitions",
		Short: "Inspect and manage partitions",
	}

	partitionsRoot.AddCommand(
		partitionsListCmd(),
		partitionsResumeCmd(),
		partitionsReconcileCmd(),
	)

	return partitionsRoot
}

func partitionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show whether each partition is halted",
		RunE: func(_ *cobra.Command, _ []string) error {
			statuses, err := newClient().ListPartitions(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(statuses)
			}
			return printPartitionsTable(os.Stdout, statuses)
		},
	}
}

func partitionsResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume ingestion after a failed rollback",
		Long: "A failed rollback halts ingestion for the partition. Inspect the datastore\n" +
			"before resuming; the halted write is never retried automatically.",
		Example: `  ppt partitions resume -p commercial`,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := partition()
			if err != nil {
				return err
			}
			resumed, err := newClient().ResumePartition(context.Background(), p)
			if err != nil {
				return err
			}
			if resumed {
				fmt.Printf("Partition %s resumed.\n", p)
			} else {
				fmt.Printf("Partition %s was not halted.\n", p)
			}
			return nil
		},
	}
}

func partitionsReconcileCmd() *cobra.Command {
	var (
		propertyType string
		activeFile   string
	)

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Delete listings no longer upstream",
		Long: "Without --active-file the server reads its configured feed. Price history\n" +
			"is never deleted.",
		Example: `  ppt partitions reconcile -p residential
  ppt partitions reconcile --property-type Condo --active-file active.txt`,
		RunE: func(_ *cobra.Command, _ []string) error {
			p, err := partition()
			if err != nil {
				return err
			}

			var active []string
			if activeFile != "" {
				if active, err = readLines(activeFile); err != nil {
					return err
				}
			}

			deleted, err := newClient().Reconcile(context.Background(), p, propertyType, active)
			if err != nil {
				return err
			}
			fmt.Printf("Deleted %d listings from %s.\n", deleted, p)
			return nil
		},
	}

	cmd.Flags().StringVar(&propertyType, "property-type", "", "restrict to one property type")
	cmd.Flags().StringVar(&activeFile, "active-file", "", "file of active MLS values, one per line")

	return cmd
}

// readLines returns the non-blank, non-comment lines of path. The result is
// never nil so an empty file is sent as an empty active set.
func readLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, err
	}
	defer f.Close()

	out := []string{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}
