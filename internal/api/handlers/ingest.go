package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// SnapshotIngester upserts a single snapshot into a partition.
type SnapshotIngester interface {
	Ingest(ctx context.Context, p domain.Partition, snap *domain.Snapshot) (*ingest.Result, error)
}

// SnapshotHandler accepts listing snapshots pushed over HTTP.
type SnapshotHandler struct {
	ingester SnapshotIngester
	strict   bool
}

// NewSnapshotHandler creates a new SnapshotHandler. With strict set, unknown
// snapshot fields are rejected.
func NewSnapshotHandler(ing SnapshotIngester, strict bool) *SnapshotHandler {
	return &SnapshotHandler{ingester: ing, strict: strict}
}

// UpsertListingInput carries one raw snapshot. The body is decoded by the
// domain decoder so that numeric and string prices are both accepted.
type UpsertListingInput struct {
	PartitionPath
	RawBody []byte `contentType:"application/json"`
}

// UpsertListingOutput reports how the snapshot was applied.
type UpsertListingOutput struct {
	Status int
	Body   *ingest.Result
}

// Upsert creates or updates a listing and records a price change.
func (h *SnapshotHandler) Upsert(
	ctx context.Context,
	input *UpsertListingInput,
) (*UpsertListingOutput, error) {
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("request body is required")
	}

	snap, err := domain.DecodeSnapshot(input.RawBody, h.strict)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	res, err := h.ingester.Ingest(ctx, domain.Partition(input.Partition), snap)
	if err != nil {
		return nil, writeError(err)
	}

	status := http.StatusOK
	if res.Classification == ingest.NotFound {
		status = http.StatusCreated
	}

	return &UpsertListingOutput{Status: status, Body: res}, nil
}

// RegisterSnapshotRoutes registers the snapshot ingestion endpoint.
func RegisterSnapshotRoutes(api huma.API, h *SnapshotHandler) {
	huma.Register(api, huma.Operation{
		OperationID:   "upsert-listing",
		Method:        http.MethodPost,
		Path:          "/api/v1/partitions/{partition}/listings",
		Summary:       "Ingest a listing snapshot",
		Description:   "Creates or updates the listing and appends to its price history when the price changed.",
		Tags:          []string{"ingest"},
		DefaultStatus: http.StatusOK,
		// The raw body is decoded by DecodeSnapshot, not by the schema.
		SkipValidateBody: true,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, h.Upsert)
}
