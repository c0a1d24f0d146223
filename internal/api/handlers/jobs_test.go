package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

type mockJobsProvider struct {
	latestRuns []domain.JobRun
	history    []domain.JobRun
	err        error

	gotName  string
	gotLimit int
}

func (m *mockJobsProvider) ListLatestJobRuns(_ context.Context) ([]domain.JobRun, error) {
	return m.latestRuns, m.err
}

func (m *mockJobsProvider) ListJobRuns(_ context.Context, name string, limit int) ([]domain.JobRun, error) {
	m.gotName, m.gotLimit = name, limit
	return m.history, m.err
}

func sampleJobRun(jobName, status string) domain.JobRun {
	return domain.JobRun{
		ID:        "job-run-id-1",
		JobName:   jobName,
		StartedAt: time.Now().Truncate(time.Second),
		Status:    status,
	}
}

func TestListJobs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		provider   *mockJobsProvider
		wantStatus int
		wantBody   []string
	}{
		{
			name: "latest run per job",
			provider: &mockJobsProvider{latestRuns: []domain.JobRun{
				sampleJobRun("ingestion", domain.JobStatusSucceeded),
				sampleJobRun("reconcile", domain.JobStatusFailed),
			}},
			wantStatus: http.StatusOK,
			wantBody:   []string{"ingestion", "reconcile", "failed"},
		},
		{
			name:       "empty list is an array",
			provider:   &mockJobsProvider{},
			wantStatus: http.StatusOK,
			wantBody:   []string{"[]"},
		},
		{
			name:       "store error",
			provider:   &mockJobsProvider{err: errors.New("db error")},
			wantStatus: http.StatusInternalServerError,
			wantBody:   []string{"listing jobs failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(tt.provider))

			resp := api.Get("/api/v1/jobs")
			require.Equal(t, tt.wantStatus, resp.Code)
			for _, want := range tt.wantBody {
				assert.Contains(t, resp.Body.String(), want)
			}
		})
	}
}

func TestGetJobHistory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		provider   *mockJobsProvider
		wantStatus int
		wantLimit  int
		wantBody   string
	}{
		{
			name: "default limit",
			path: "/api/v1/jobs/ingestion",
			provider: &mockJobsProvider{history: []domain.JobRun{
				sampleJobRun("ingestion", domain.JobStatusSucceeded),
			}},
			wantStatus: http.StatusOK,
			wantLimit:  20,
			wantBody:   "ingestion",
		},
		{
			name:       "explicit limit",
			path:       "/api/v1/jobs/maintenance?limit=5",
			provider:   &mockJobsProvider{},
			wantStatus: http.StatusOK,
			wantLimit:  5,
			wantBody:   "[]",
		},
		{
			name:       "limit out of range",
			path:       "/api/v1/jobs/ingestion?limit=0",
			provider:   &mockJobsProvider{},
			wantStatus: http.StatusUnprocessableEntity,
		},
		{
			name:       "store error",
			path:       "/api/v1/jobs/ingestion",
			provider:   &mockJobsProvider{err: errors.New("db error")},
			wantStatus: http.StatusInternalServerError,
			wantLimit:  20,
			wantBody:   "fetching job history failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			handlers.RegisterJobRoutes(api, handlers.NewJobsHandler(tt.provider))

			resp := api.Get(tt.path)
			require.Equal(t, tt.wantStatus, resp.Code)
			assert.Equal(t, tt.wantLimit, tt.provider.gotLimit)
			if tt.wantBody != "" {
				assert.Contains(t, resp.Body.String(), tt.wantBody)
			}
		})
	}
}
