package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// StatsComputer computes aggregate price statistics.
type StatsComputer interface {
	Compute(
		ctx context.Context,
		p domain.Partition,
		q store.ListingQuery,
		spanMonths int,
		names []string,
	) (*domain.ListingStats, error)
}

// StatsHandler serves price statistics.
type StatsHandler struct {
	stats StatsComputer
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(s StatsComputer) *StatsHandler {
	return &StatsHandler{stats: s}
}

// GetStatsInput selects the listings and metrics to aggregate.
type GetStatsInput struct {
	PartitionPath
	ListingFilters
	SpanMonths int      `query:"span_months" doc:"Months of listings to include (default 3)" minimum:"1" maximum:"120"`
	Metrics    []string `query:"metrics"     doc:"Metrics to compute (default all)"`
}

// GetStatsOutput is the response for price statistics.
type GetStatsOutput struct {
	Body *domain.ListingStats
}

// GetStats returns the requested metrics over recent matching listings.
func (h *StatsHandler) GetStats(ctx context.Context, input *GetStatsInput) (*GetStatsOutput, error) {
	q, err := input.toQuery()
	if err != nil {
		return nil, err
	}

	out, err := h.stats.Compute(ctx, domain.Partition(input.Partition), *q, input.SpanMonths, input.Metrics)
	if err != nil {
		return nil, writeError(err)
	}

	return &GetStatsOutput{Body: out}, nil
}

// RegisterStatsRoutes registers the statistics endpoint.
func RegisterStatsRoutes(api huma.API, h *StatsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/partitions/{partition}/stats",
		Summary:     "Get price statistics",
		Description: "Returns avg, median and sd of list prices. Each metric reports whether it came from the cache.",
		Tags:        []string{"stats"},
		Errors:      []int{http.StatusUnprocessableEntity, http.StatusInternalServerError},
	}, h.GetStats)
}
