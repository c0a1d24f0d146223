package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	"github.com/donaldgifford/property-price-tracker/internal/stats"
	"github.com/donaldgifford/property-price-tracker/internal/store"
)

// writeError converts an ingestion or query error into a Huma status error.
func writeError(err error) error {
	var (
		fatal *store.FatalRollbackFailure
		wf    *store.WriteFailure
	)

	switch {
	case errors.As(err, &fatal):
		return huma.Error500InternalServerError("rollback failed; partition halted", err)
	case errors.Is(err, ingest.ErrPartitionHalted),
		errors.Is(err, ingest.ErrPartitionBusy),
		errors.Is(err, ingest.ErrNotFoundForUpdate):
		return huma.Error409Conflict(err.Error())
	case errors.Is(err, ingest.ErrValidation),
		errors.Is(err, ingest.ErrInvalidPriceFormat),
		errors.Is(err, ingest.ErrEmptyActiveSet),
		errors.Is(err, stats.ErrUnknownMetric):
		return huma.Error422UnprocessableEntity(err.Error())
	case errors.Is(err, store.ErrNotFound):
		return huma.Error404NotFound(err.Error())
	case errors.As(err, &wf):
		return huma.Error500InternalServerError("write failed", err)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}
