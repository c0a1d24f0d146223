package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
	"github.com/donaldgifford/property-price-tracker/internal/engine"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

type stubRunner struct {
	report *engine.CycleReport
	err    error
	calls  int
}

func (s *stubRunner) RunCycle(context.Context) (*engine.CycleReport, error) {
	s.calls++
	return s.report, s.err
}

func TestTriggerIngest(t *testing.T) {
	t.Parallel()

	report := &engine.CycleReport{
		JobRunID:  "run-1",
		StartedAt: time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		Partitions: []engine.PartitionReport{
			{Partition: domain.PartitionResidential, Fetched: 3, Ingested: 3},
			{Partition: domain.PartitionCommercial, Error: "fetching feed: timeout"},
		},
	}

	tests := []struct {
		name       string
		runner     *stubRunner
		wantStatus int
		wantBody   string
	}{
		{name: "success", runner: &stubRunner{report: report}, wantStatus: http.StatusOK, wantBody: "run-1"},
		{
			name:       "partial failure still reports",
			runner:     &stubRunner{report: report, err: errors.New("commercial: fetching feed: timeout")},
			wantStatus: http.StatusOK,
			wantBody:   "fetching feed: timeout",
		},
		{name: "already running", runner: &stubRunner{err: engine.ErrCycleRunning}, wantStatus: http.StatusConflict},
		{name: "no report", runner: &stubRunner{err: errors.New("recording job run: db down")}, wantStatus: http.StatusInternalServerError, wantBody: "ingestion failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			handlers.RegisterTriggerRoutes(api, handlers.NewIngestHandler(tt.runner))

			resp := api.Post("/api/v1/ingest")
			require.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
			assert.Equal(t, 1, tt.runner.calls)
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestTriggerIngest_ReportShape(t *testing.T) {
	t.Parallel()

	runner := &stubRunner{report: &engine.CycleReport{
		JobRunID:   "run-2",
		Partitions: []engine.PartitionReport{{Partition: domain.PartitionResidential, Deleted: 2}},
	}}
	_, api := humatest.New(t)
	handlers.RegisterTriggerRoutes(api, handlers.NewIngestHandler(runner))

	resp := api.Post("/api/v1/ingest")
	require.Equal(t, http.StatusOK, resp.Code)

	var got engine.CycleReport
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &got))
	require.Len(t, got.Partitions, 1)
	assert.Equal(t, 2, got.Partitions[0].Deleted)
}
