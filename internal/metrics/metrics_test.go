package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistered(t *testing.T) {
	t.Parallel()

	// Verify all metrics are non-nil (registered via promauto on package init).
	assert.NotNil(t, HTTPRequestDuration)
	assert.NotNil(t, HTTPRequestsTotal)
	assert.NotNil(t, IngestionListingsTotal)
	assert.NotNil(t, IngestionErrorsTotal)
	assert.NotNil(t, IngestionDuration)
	assert.NotNil(t, PriceHistoryAppendsTotal)
	assert.NotNil(t, BatchWriteDuration)
	assert.NotNil(t, WriteFailuresTotal)
	assert.NotNil(t, FatalRollbacksTotal)
	assert.NotNil(t, PartitionHalted)
	assert.NotNil(t, SweepDeletedTotal)
	assert.NotNil(t, CacheHitsTotal)
	assert.NotNil(t, FeedSnapshotsTotal)
	assert.NotNil(t, NotificationFailuresTotal)
}

func TestPartitionHaltedGauge(t *testing.T) {
	t.Parallel()

	g := PartitionHalted.WithLabelValues("metrics-test")
	g.Set(1)
	assert.InDelta(t, 1.0, testutil.ToFloat64(g), 0)
	g.Set(0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(g), 0)
}
