package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/donaldgifford/property-price-tracker/internal/engine"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

var (
	reconcilePartition    string
	reconcilePropertyType string
	reconcileActiveFile   string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Delete listings no longer present upstream",
	Long: "Removes listings of a partition whose MLS is not in the active set. The active set is\n" +
		"read from --active-file (one MLS per line) or, without it, from the configured feed.\n" +
		"Price history is never deleted.",
	Example: `  property-price-tracker reconcile --partition residential
  property-price-tracker reconcile --partition commercial --property-type Office --active-file active.txt`,
	RunE: runReconcile,
}

func init() {
	reconcileCmd.Flags().StringVarP(&reconcilePartition, "partition", "p", string(domain.PartitionResidential),
		"partition to reconcile")
	reconcileCmd.Flags().StringVar(&reconcilePropertyType, "property-type", "", "restrict to one property type")
	reconcileCmd.Flags().StringVar(&reconcileActiveFile, "active-file", "", "file of active MLS values, one per line")
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	p, err := domain.ParsePartition(reconcilePartition)
	if err != nil {
		return err
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	s, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	notifier := newNotifier(&cfg.Notifications, log)
	orch, err := newOrchestrator(ctx, cfg, s, notifier, log)
	if err != nil {
		return err
	}

	var deleted int
	if reconcileActiveFile != "" {
		active, err := readActiveSet(reconcileActiveFile)
		if err != nil {
			return err
		}
		deleted, err = orch.Sweeper().PruneAbsent(ctx, p, reconcilePropertyType, active)
		if err != nil {
			return err
		}
	} else {
		src, err := newSource(ctx, &cfg.Feed)
		if err != nil {
			return err
		}
		if src == nil {
			return errors.New("no feed configured; pass --active-file")
		}
		eng := engine.NewEngine(s, orch, src, engine.WithLogger(log), engine.WithNotifier(notifier))
		deleted, err = eng.RunReconcile(ctx, p, reconcilePropertyType)
		if err != nil {
			return err
		}
	}

	fmt.Printf("deleted=%d\n", deleted)
	return nil
}

// readActiveSet reads one MLS per line. Blank lines and lines starting with
// # are skipped.
func readActiveSet(path string) (map[string]struct{}, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("opening active set: %w", err)
	}
	defer f.Close()

	active := make(map[string]struct{})
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		active[line] = struct{}{}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading active set: %w", err)
	}
	return active, nil
}
