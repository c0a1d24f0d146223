package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func newTestOrchestrator(t *testing.T) (*ingest.Orchestrator, *store.SQLiteStore) {
	t.Helper()
	s := newTestStore(t)
	return ingest.NewOrchestrator(s, ingest.WithLogger(quietLogger())), s
}

func snapshot(mls, propertyType, area, price string) *domain.Snapshot {
	return &domain.Snapshot{
		MLS:          mls,
		PropertyType: propertyType,
		ListPrice:    domain.FlexString(price),
		TimestampSQL: "2026-10-01 12:00:00",
		Street:       "1",
		StreetName:   "Queen",
		Area:         area,
		Province:     "Ontario",
		Bedrooms:     "3",
	}
}

func seedListing(t *testing.T, o *ingest.Orchestrator, p domain.Partition, snap *domain.Snapshot) {
	t.Helper()
	_, err := o.Ingest(context.Background(), p, snap)
	require.NoError(t, err)
}
