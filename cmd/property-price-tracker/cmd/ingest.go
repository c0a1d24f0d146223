package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

var (
	ingestPartition string
	ingestStrict    bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file.json>...",
	Short: "Ingest snapshot files directly into the datastore",
	Long: "Reads JSON files holding one snapshot or an array of snapshots and upserts each into\n" +
		"the partition. Failures are reported per snapshot; the command fails if any snapshot failed.",
	Args: cobra.MinimumNArgs(1),
	Example: `  property-price-tracker ingest --partition residential feed/residential/*.json
  property-price-tracker ingest --partition commercial --strict listing.json`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestPartition, "partition", "p", string(domain.PartitionResidential),
		"target partition (residential, commercial)")
	ingestCmd.Flags().BoolVar(&ingestStrict, "strict", true,
		"reject snapshots with unknown fields (defaults to feed.strict from the config)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	p, err := domain.ParsePartition(ingestPartition)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	strict := strictFields(cmd, cfg.Feed.Strict)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	orch, err := newOrchestrator(ctx, cfg, s, newNotifier(&cfg.Notifications, log), log)
	if err != nil {
		return err
	}

	var (
		counts = map[ingest.Classification]int{}
		failed int
	)
	for _, path := range args {
		data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		snaps, err := domain.DecodeSnapshots(data, strict)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		for _, snap := range snaps {
			res, err := orch.Ingest(ctx, p, snap)
			if errors.Is(err, ingest.ErrPartitionHalted) {
				return err
			}
			if err != nil {
				failed++
				log.Error("snapshot failed", "file", path, "mls", snap.MLS, "error", err)
				continue
			}
			counts[res.Classification]++
		}
	}

	fmt.Printf("created=%d images_updated=%d updated=%d failed=%d\n",
		counts[ingest.NotFound],
		counts[ingest.FoundWithNewImages],
		counts[ingest.FoundNoImageChange],
		failed,
	)

	if failed > 0 {
		return fmt.Errorf("%d snapshots failed", failed)
	}
	return nil
}

// strictFields returns the --strict flag when it was given and the
// configured policy otherwise.
func strictFields(cmd *cobra.Command, configured bool) bool {
	if cmd.Flags().Changed("strict") {
		return ingestStrict
	}
	return configured
}
