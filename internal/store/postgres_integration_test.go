//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

func setupPostgres(t *testing.T) *store.PostgresStore {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("ppt_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := store.NewPostgresStore(ctx, connStr, 4)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
	})

	require.NoError(t, s.Migrate(ctx))

	return s
}

func TestPostgresStore_Ping(t *testing.T) {
	s := setupPostgres(t)
	require.NoError(t, s.Ping(context.Background()))
	require.NoError(t, s.Migrate(context.Background()), "migrations are idempotent")
}

func TestPostgresStore_BatchRoundTrip(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	p := domain.PartitionResidential

	history := store.WriteOperation{
		Table:  p.HistoryTable(),
		Kind:   store.OpInsert,
		Key:    "C123",
		Fields: []store.Field{{Column: store.ColHistory, Value: `[{"date":"2026-09-01T12:00:00Z","price":"500000"}]`}},
	}
	require.NoError(t, apply(t, s, store.Batch{history, insertListingOp(p, "C123", 500000, "toronto")}))

	l, err := s.GetListing(ctx, p, "C123")
	require.NoError(t, err)
	assert.True(t, l.MaxListPrice.Decimal.Equal(decimal.NewFromInt(500000)))
	assert.Equal(t, []string{"a1.jpg", "a2.jpg"}, l.PhotoLink)

	h, err := s.GetPriceHistory(ctx, p, "C123")
	require.NoError(t, err)
	require.Len(t, h.Points, 1)
	assert.True(t, h.Points[0].Price.Equal(decimal.NewFromInt(500000)))
}

func TestPostgresStore_BatchRollsBack(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	p := domain.PartitionCommercial

	require.NoError(t, apply(t, s, store.Batch{insertListingOp(p, "K1", 100, "a")}))

	history := store.WriteOperation{
		Table:  p.HistoryTable(),
		Kind:   store.OpInsert,
		Key:    "K2",
		Fields: []store.Field{{Column: store.ColHistory, Value: `[]`}},
	}
	err := apply(t, s, store.Batch{history, insertListingOp(p, "K1", 200, "a")})

	var wf *store.WriteFailure
	require.ErrorAs(t, err, &wf)

	_, err = s.GetPriceHistory(ctx, p, "K2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgresStore_JobRuns(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	id, err := s.InsertJobRun(ctx, "ingest:commercial")
	require.NoError(t, err)
	require.NoError(t, s.CompleteJobRun(ctx, id, domain.JobStatusFailed, "boom", 0))

	runs, err := s.ListLatestJobRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].ErrorText)
}

func TestPostgresStore_Halts(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, s.SaveHalt(ctx, domain.PartitionStatus{Partition: domain.PartitionResidential, Reason: "rollback failed"}))
	require.NoError(t, s.SaveHalt(ctx, domain.PartitionStatus{Partition: domain.PartitionResidential, Reason: "again"}))

	halts, err := s.ListHalts(ctx)
	require.NoError(t, err)
	require.Len(t, halts, 1)
	assert.Equal(t, "rollback failed", halts[0].Reason)
	assert.NotNil(t, halts[0].HaltedAt)

	require.NoError(t, s.DeleteHalt(ctx, domain.PartitionResidential))
	halts, err = s.ListHalts(ctx)
	require.NoError(t, err)
	assert.Empty(t, halts)
}

func TestPostgresStore_SearchIsLiteral(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()
	p := domain.PartitionResidential

	require.NoError(t, apply(t, s, store.Batch{
		insertListingOp(p, "U1", 100, "unit_5"),
		insertListingOp(p, "U2", 100, "unitx5"),
	}))

	search := "unit_5"
	listings, total, err := s.ListListings(ctx, p, &store.ListingQuery{Search: &search})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, listings, 1)
	assert.Equal(t, "U1", listings[0].MLS)
}
