// Package feed reads full listing snapshots from upstream sources. A fetch
// returns every listing currently active in the partition, so its MLS set is
// authoritative for reconciliation.
package feed

import (
	"context"
	"fmt"
	"strings"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Source produces the complete current snapshot set for a partition.
type Source interface {
	Fetch(ctx context.Context, p domain.Partition) ([]*domain.Snapshot, error)
	Name() string
}

func isSnapshotFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".json")
}

func decodeFile(name string, data []byte, strict bool) ([]*domain.Snapshot, error) {
	snaps, err := domain.DecodeSnapshots(data, strict)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return snaps, nil
}
