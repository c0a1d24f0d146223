// Package domain defines the core business types for the property price tracker.
package domain

import (
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Partition identifies a property-type partition. Each partition owns its own
// listings and price history tables.
type Partition string

// Partition constants.
const (
	PartitionResidential Partition = "residential"
	PartitionCommercial  Partition = "commercial"
)

// Partitions lists every known partition in a stable order.
var Partitions = []Partition{PartitionResidential, PartitionCommercial}

// ParsePartition validates s and returns the matching Partition.
func ParsePartition(s string) (Partition, error) {
	p := Partition(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown partition %q", s)
	}
	return p, nil
}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	return slices.Contains(Partitions, p)
}

// ListingsTable returns the listings table name for the partition.
func (p Partition) ListingsTable() string {
	return string(p) + "_listings"
}

// HistoryTable returns the price history table name for the partition.
func (p Partition) HistoryTable() string {
	return string(p) + "_price_history"
}

// Listing is one stored property row, keyed by MLS.
type Listing struct {
	MLS          string              `json:"mls"                      db:"mls"`
	PropertyType string              `json:"property_type"            db:"property_type"`
	ListPrice    decimal.Decimal     `json:"list_price"               db:"list_price"`
	MinListPrice decimal.NullDecimal `json:"min_list_price"           db:"min_list_price"`
	MaxListPrice decimal.NullDecimal `json:"max_list_price"           db:"max_list_price"`
	TimestampSQL time.Time           `json:"timestamp_sql"            db:"timestamp_sql"`

	// Photos
	PhotoLink  []string `json:"photo_link,omitempty" db:"photo_link"`
	PhotoCount int      `json:"photo_count"          db:"photo_count"`

	// Address
	SearchAddress      string `json:"search_address"      db:"search_address"`
	Street             string `json:"street"              db:"street"`
	StreetName         string `json:"street_name"         db:"street_name"`
	StreetAbbreviation string `json:"street_abbreviation" db:"street_abbreviation"`
	Area               string `json:"area"                db:"area"`
	Municipality       string `json:"municipality"        db:"municipality"`
	Province           string `json:"province"            db:"province"`
	PostalCode         string `json:"postal_code"         db:"postal_code"`

	// Details
	Bedrooms    string         `json:"bedrooms,omitempty"    db:"bedrooms"`
	Washrooms   string         `json:"washrooms,omitempty"   db:"washrooms"`
	Description string         `json:"description,omitempty" db:"description"`
	Attributes  map[string]any `json:"attributes,omitempty"  db:"attributes"`

	// Timestamps
	FirstSeenAt time.Time `json:"first_seen_at" db:"first_seen_at"`
	UpdatedAt   time.Time `json:"updated_at"    db:"updated_at"`
}

// PriceDecreased reports whether the listing currently sits at its lowest
// observed price after having been listed higher.
func (l *Listing) PriceDecreased() bool {
	if !l.MinListPrice.Valid || !l.MaxListPrice.Valid {
		return false
	}
	return l.MinListPrice.Decimal.Equal(l.ListPrice) &&
		l.MinListPrice.Decimal.LessThan(l.MaxListPrice.Decimal)
}

// PricePoint is a single observed list price.
type PricePoint struct {
	Date  time.Time       `json:"date"`
	Price decimal.Decimal `json:"price"`
}

// PriceHistory is the append-only ledger of observed prices for one MLS.
type PriceHistory struct {
	MLS    string       `json:"mls"`
	Points []PricePoint `json:"points"`
}

// Latest returns the most recent observation, if any.
func (h *PriceHistory) Latest() (PricePoint, bool) {
	if h == nil || len(h.Points) == 0 {
		return PricePoint{}, false
	}
	return h.Points[len(h.Points)-1], true
}

// JobRun records a single execution of a scheduled or manual job.
type JobRun struct {
	ID           string     `json:"id"                      db:"id"`
	JobName      string     `json:"job_name"                db:"job_name"`
	StartedAt    time.Time  `json:"started_at"              db:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"  db:"completed_at"`
	Status       string     `json:"status"                  db:"status"`
	ErrorText    string     `json:"error_text,omitempty"    db:"error_text"`
	RowsAffected *int       `json:"rows_affected,omitempty" db:"rows_affected"`
}

// Job run statuses.
const (
	JobStatusRunning   = "running"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"
)

// StatValue is one computed listing statistic.
type StatValue struct {
	Value  *float64 `json:"value"`
	Source string   `json:"source" example:"new" doc:"cached or new"`
}

// Stat sources.
const (
	StatSourceCached = "cached"
	StatSourceNew    = "new"
)

// ListingStats holds aggregate ListPrice statistics for a filtered partition.
type ListingStats struct {
	Partition  Partition            `json:"partition"`
	SpanMonths int                  `json:"span_months"`
	Metrics    map[string]StatValue `json:"metrics"`
}

// PartitionStatus reports whether automated ingestion is halted for a partition.
type PartitionStatus struct {
	Partition Partition  `json:"partition"`
	Halted    bool       `json:"halted"`
	Reason    string     `json:"reason,omitempty"`
	HaltedAt  *time.Time `json:"halted_at,omitempty"`
}
