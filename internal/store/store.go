// Package store defines the datastore abstraction for property-price-tracker.
// All business logic depends on the Store and Conn interfaces, never on
// concrete implementations. Two backends exist: PostgreSQL through pgxpool and
// an embedded SQLite database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// ErrNotFound is returned by reads when no row matches the key.
var ErrNotFound = errors.New("not found")

// ListingQuery defines optional filters for listing and price queries.
type ListingQuery struct {
	PropertyType   *string
	Area           *string
	AnyArea        []string
	Municipality   *string
	Province       *string
	Bedrooms       *string
	MinPrice       *decimal.Decimal
	MaxPrice       *decimal.Decimal
	PriceDecreased bool
	Search         *string    // matched against search_address
	Since          *time.Time // timestamp_sql lower bound
	Limit          int        // default 10
	Offset         int
	OrderBy        string // "timestamp", "price", "price_desc"
}

// Reader reads the current persisted state of a partition.
type Reader interface {
	// GetListing returns ErrNotFound when no row exists for mls.
	GetListing(ctx context.Context, p domain.Partition, mls string) (*domain.Listing, error)
	// GetPriceHistory returns ErrNotFound when no ledger exists for mls.
	GetPriceHistory(ctx context.Context, p domain.Partition, mls string) (*domain.PriceHistory, error)
}

// Conn is a single acquired database connection. Reads and the batch write of
// one ingestion run on the same Conn. Release must be called exactly once.
type Conn interface {
	Reader

	// ApplyBatch applies every operation of batch in one transaction.
	ApplyBatch(ctx context.Context, batch Batch) error

	// ListMLS returns every MLS in the partition, optionally restricted to a
	// property type.
	ListMLS(ctx context.Context, p domain.Partition, propertyType string) ([]string, error)

	Release()
}

// Store defines all data access operations for property-price-tracker.
type Store interface {
	Reader

	// Acquire checks out a dedicated connection.
	Acquire(ctx context.Context) (Conn, error)

	// Listings
	ListListings(ctx context.Context, p domain.Partition, q *ListingQuery) ([]domain.Listing, int, error)
	ListPrices(ctx context.Context, p domain.Partition, q *ListingQuery) ([]decimal.Decimal, error)

	// Scheduler
	InsertJobRun(ctx context.Context, jobName string) (id string, err error)
	CompleteJobRun(ctx context.Context, id string, status string, errText string, rowsAffected int) error
	ListJobRuns(ctx context.Context, jobName string, limit int) ([]domain.JobRun, error)
	ListLatestJobRuns(ctx context.Context) ([]domain.JobRun, error)
	RecoverStaleJobRuns(ctx context.Context, olderThan time.Duration) (int, error)

	// Halts survive restarts until an operator resumes the partition.
	SaveHalt(ctx context.Context, st domain.PartitionStatus) error
	DeleteHalt(ctx context.Context, p domain.Partition) error
	ListHalts(ctx context.Context) ([]domain.PartitionStatus, error)

	// Migrations
	Migrate(ctx context.Context) error

	// Health
	Ping(ctx context.Context) error

	Close()
}
