package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/donaldgifford/property-price-tracker/internal/engine"
)

// CycleRunner runs one feed ingestion cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (*engine.CycleReport, error)
}

// IngestHandler handles manual ingestion trigger requests.
type IngestHandler struct {
	runner CycleRunner
}

// NewIngestHandler creates a new IngestHandler.
func NewIngestHandler(r CycleRunner) *IngestHandler {
	return &IngestHandler{runner: r}
}

// IngestOutput is the response body for the ingest endpoint.
type IngestOutput struct {
	Body *engine.CycleReport
}

// Ingest runs a full feed cycle and returns its per-partition report.
// Partition failures are reported in the body; only a cycle that produced no
// report fails the request.
func (h *IngestHandler) Ingest(ctx context.Context, _ *struct{}) (*IngestOutput, error) {
	report, err := h.runner.RunCycle(ctx)
	if errors.Is(err, engine.ErrCycleRunning) {
		return nil, huma.Error409Conflict(err.Error())
	}
	if err != nil && report == nil {
		return nil, huma.Error500InternalServerError("ingestion failed: " + err.Error())
	}

	return &IngestOutput{Body: report}, nil
}

// RegisterTriggerRoutes registers trigger endpoints with the Huma API.
func RegisterTriggerRoutes(api huma.API, h *IngestHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "trigger-ingest",
		Method:      http.MethodPost,
		Path:        "/api/v1/ingest",
		Summary:     "Trigger manual ingestion",
		Description: "Fetches every partition from the feed, ingests the snapshots " +
			"and reconciles listings that left the feed.",
		Tags:   []string{"ingest"},
		Errors: []int{http.StatusConflict, http.StatusInternalServerError},
	}, h.Ingest)
}
