package feed

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Dir reads snapshots from <root>/<partition>/*.json. Each file holds either
// one snapshot object or an array of them.
type Dir struct {
	root   string
	strict bool
}

// NewDir creates a directory source. With strict set, unknown snapshot
// fields are rejected.
func NewDir(root string, strict bool) *Dir {
	return &Dir{root: root, strict: strict}
}

// Name implements Source.
func (d *Dir) Name() string { return "dir:" + d.root }

// Fetch implements Source. A missing partition directory yields no
// snapshots.
func (d *Dir) Fetch(ctx context.Context, p domain.Partition) ([]*domain.Snapshot, error) {
	dir := filepath.Join(d.root, string(p))

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading feed directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && isSnapshotFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	var out []*domain.Snapshot
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}
		snaps, err := decodeFile(name, data, d.strict)
		if err != nil {
			return nil, err
		}
		out = append(out, snaps...)
	}
	return out, nil
}
