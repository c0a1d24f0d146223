// Package ingest implements the listing upsert-with-price-history engine:
// classification of incoming snapshots, bound and history derivation, the
// single-transaction write, and reconciliation of listings that left the
// upstream feed.
package ingest

import (
	"errors"
	"fmt"

	"github.com/donaldgifford/property-price-tracker/internal/store"
)

var (
	// ErrInvalidPriceFormat is returned for a ListPrice that is not a
	// non-negative decimal number.
	ErrInvalidPriceFormat = errors.New("invalid price format")

	// ErrNotFoundForUpdate is returned when the update path runs without an
	// existing row. It is never treated as a create.
	ErrNotFoundForUpdate = store.ErrNotFoundForUpdate

	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrPartitionHalted is returned while a partition is halted after a
	// failed rollback.
	ErrPartitionHalted = errors.New("partition halted")

	// ErrEmptyActiveSet is returned when reconciliation is asked to prune
	// against an empty active set.
	ErrEmptyActiveSet = errors.New("active set is empty")

	// ErrPartitionBusy is returned when a reconciliation is requested while
	// a cycle or another reconciliation holds the partition.
	ErrPartitionBusy = errors.New("partition busy")
)

// ValidationError reports a missing or malformed snapshot field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Is reports whether target is ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
