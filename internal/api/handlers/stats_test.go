package handlers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
	"github.com/donaldgifford/property-price-tracker/internal/stats"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

type fakeStats struct {
	err error

	gotPartition domain.Partition
	gotQuery     store.ListingQuery
	gotSpan      int
	gotNames     []string
}

func (f *fakeStats) Compute(
	_ context.Context,
	p domain.Partition,
	q store.ListingQuery,
	span int,
	names []string,
) (*domain.ListingStats, error) {
	f.gotPartition, f.gotQuery, f.gotSpan, f.gotNames = p, q, span, names
	if f.err != nil {
		return nil, f.err
	}
	v := 1.5
	return &domain.ListingStats{
		Partition:  p,
		SpanMonths: span,
		Metrics: map[string]domain.StatValue{
			stats.MetricAvg: {Value: &v, Source: domain.StatSourceCached},
		},
	}, nil
}

func TestGetStats(t *testing.T) {
	t.Parallel()

	fs := &fakeStats{}
	_, api := humatest.New(t)
	handlers.RegisterStatsRoutes(api, handlers.NewStatsHandler(fs))

	resp := api.Get("/api/v1/partitions/commercial/stats?span_months=6&metrics=avg,sd&area=Toronto&price_decreased=true&min_price=100")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"source":"cached"`)

	assert.Equal(t, domain.PartitionCommercial, fs.gotPartition)
	assert.Equal(t, 6, fs.gotSpan)
	assert.Equal(t, []string{"avg", "sd"}, fs.gotNames)
	require.NotNil(t, fs.gotQuery.Area)
	assert.Equal(t, "Toronto", *fs.gotQuery.Area)
	assert.True(t, fs.gotQuery.PriceDecreased)
	require.NotNil(t, fs.gotQuery.MinPrice)
	assert.Equal(t, "100", fs.gotQuery.MinPrice.String())
	assert.Nil(t, fs.gotQuery.MaxPrice)
}

func TestGetStats_Defaults(t *testing.T) {
	t.Parallel()

	fs := &fakeStats{}
	_, api := humatest.New(t)
	handlers.RegisterStatsRoutes(api, handlers.NewStatsHandler(fs))

	resp := api.Get("/api/v1/partitions/residential/stats")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Zero(t, fs.gotSpan)
	assert.Empty(t, fs.gotNames)
}

func TestGetStats_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		err        error
		wantStatus int
	}{
		{name: "unknown metric", path: "/api/v1/partitions/residential/stats?metrics=mode", err: fmt.Errorf("%w: %q", stats.ErrUnknownMetric, "mode"), wantStatus: http.StatusUnprocessableEntity},
		{name: "span out of range", path: "/api/v1/partitions/residential/stats?span_months=0", wantStatus: http.StatusUnprocessableEntity},
		{name: "bad price", path: "/api/v1/partitions/residential/stats?max_price=abc", wantStatus: http.StatusUnprocessableEntity},
		{name: "store error", path: "/api/v1/partitions/residential/stats", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, api := humatest.New(t)
			handlers.RegisterStatsRoutes(api, handlers.NewStatsHandler(&fakeStats{err: tt.err}))

			resp := api.Get(tt.path)
			assert.Equal(t, tt.wantStatus, resp.Code, resp.Body.String())
		})
	}
}

func TestGetStats_WithStatsService(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, api := humatest.New(t)
	handlers.RegisterStatsRoutes(api, handlers.NewStatsHandler(stats.New(s, nil)))

	resp := api.Get("/api/v1/partitions/residential/stats")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Contains(t, resp.Body.String(), `"median"`)
	assert.Contains(t, resp.Body.String(), `"value":null`)
}
