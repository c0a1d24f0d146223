package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	"github.com/donaldgifford/property-price-tracker/internal/notify"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// quietLogger returns a logger that discards output for tests.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) SendAlert(ctx context.Context, alert *notify.AlertPayload) error {
	return m.Called(ctx, alert).Error(0)
}

func (m *mockNotifier) SendBatchAlert(ctx context.Context, alerts []notify.AlertPayload, subject string) error {
	return m.Called(ctx, alerts, subject).Error(0)
}

// fakeSource serves a fixed snapshot set per partition.
type fakeSource struct {
	mu    sync.Mutex
	snaps map[domain.Partition][]*domain.Snapshot
	errs  map[domain.Partition]error
	calls map[domain.Partition]int

	// When block is set, Fetch closes entered and waits for block.
	block   chan struct{}
	entered chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		snaps: make(map[domain.Partition][]*domain.Snapshot),
		errs:  make(map[domain.Partition]error),
		calls: make(map[domain.Partition]int),
	}
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(ctx context.Context, p domain.Partition) ([]*domain.Snapshot, error) {
	if f.block != nil {
		close(f.entered)
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[p]++
	return f.snaps[p], f.errs[p]
}

func (f *fakeSource) set(p domain.Partition, snaps ...*domain.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snaps[p] = snaps
}

func snap(mls, propertyType, price string) *domain.Snapshot {
	return &domain.Snapshot{
		MLS:          mls,
		PropertyType: propertyType,
		ListPrice:    domain.FlexString(price),
		TimestampSQL: "2026-09-30 12:00:00",
		Area:         "Toronto",
		Province:     "Ontario",
	}
}

type harness struct {
	store    *store.SQLiteStore
	orch     *ingest.Orchestrator
	source   *fakeSource
	notifier *mockNotifier
	engine   *Engine
}

func newHarness(t *testing.T, opts ...EngineOption) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := store.NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.Migrate(ctx))

	n := &mockNotifier{}
	o := ingest.NewOrchestrator(s, ingest.WithLogger(quietLogger()), ingest.WithNotifier(n))
	src := newFakeSource()

	opts = append([]EngineOption{
		WithLogger(quietLogger()),
		WithNotifier(n),
		WithConcurrency(3),
	}, opts...)

	return &harness{
		store:    s,
		orch:     o,
		source:   src,
		notifier: n,
		engine:   NewEngine(s, o, src, opts...),
	}
}

func (h *harness) lastJob(t *testing.T, name string) domain.JobRun {
	t.Helper()
	runs, err := h.store.ListJobRuns(context.Background(), name, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return runs[0]
}

func reportFor(t *testing.T, r *CycleReport, p domain.Partition) PartitionReport {
	t.Helper()
	for _, pr := range r.Partitions {
		if pr.Partition == p {
			return pr
		}
	}
	t.Fatalf("no report for %s", p)
	return PartitionReport{}
}

func TestNewEngine_Defaults(t *testing.T) {
	t.Parallel()

	eng := NewEngine(nil, nil, newFakeSource())
	assert.Equal(t, defaultConcurrency, eng.concurrency)
	assert.Equal(t, domain.Partitions, eng.partitions)
	assert.True(t, eng.reconcile)
	assert.Nil(t, eng.limiter)
	assert.NotNil(t, eng.notifier)
}

func TestNewEngine_WithOptions(t *testing.T) {
	t.Parallel()

	l := quietLogger()
	eng := NewEngine(nil, nil, newFakeSource(),
		WithLogger(l),
		WithPartitions(domain.PartitionCommercial),
		WithConcurrency(8),
		WithRateLimit(5, 0),
		WithReconcile(false),
	)

	assert.Same(t, l, eng.log)
	assert.Equal(t, []domain.Partition{domain.PartitionCommercial}, eng.partitions)
	assert.Equal(t, 8, eng.concurrency)
	require.NotNil(t, eng.limiter)
	assert.Equal(t, 1, eng.limiter.Burst())
	assert.False(t, eng.reconcile)
}

func TestRunCycle_IngestsAndReconciles(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx := context.Background()
	res := domain.PartitionResidential

	h.source.set(res, snap("A", "Detached", "500000"), snap("B", "Condo", "400000"), snap("C", "Condo", "300000"))
	h.source.set(domain.PartitionCommercial, snap("K", "Retail", "900000"))

	report, err := h.engine.RunCycle(ctx)
	require.NoError(t, err)

	pr := reportFor(t, report, res)
	assert.Equal(t, 3, pr.Fetched)
	assert.Equal(t, 3, pr.Ingested)
	assert.Equal(t, 3, pr.Classifications[ingest.NotFound])
	assert.Equal(t, 3, pr.HistoryAppended)
	assert.Zero(t, pr.Deleted)

	// Second cycle: B drops in price and C disappears upstream.
	h.source.set(res, snap("A", "Detached", "500000"), snap("B", "Condo", "380000"))

	report, err = h.engine.RunCycle(ctx)
	require.NoError(t, err)

	pr = reportFor(t, report, res)
	assert.Equal(t, 2, pr.Ingested)
	assert.Equal(t, 2, pr.Classifications[ingest.FoundNoImageChange])
	assert.Equal(t, 1, pr.HistoryAppended)
	assert.Equal(t, 1, pr.Deleted)

	_, err = h.store.GetListing(ctx, res, "C")
	require.ErrorIs(t, err, store.ErrNotFound)

	b, err := h.store.GetListing(ctx, res, "B")
	require.NoError(t, err)
	assert.Equal(t, "380000", b.MinListPrice.Decimal.String())
	assert.Equal(t, "400000", b.MaxListPrice.Decimal.String())

	job := h.lastJob(t, JobIngestion)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)
	require.NotNil(t, job.RowsAffected)
	assert.Equal(t, 4, *job.RowsAffected, "2 residential + 1 commercial ingested, 1 deleted")

	h.notifier.AssertNotCalled(t, "SendBatchAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_FeedErrorIsolatedToPartition(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.source.errs[domain.PartitionResidential] = errors.New("bucket unavailable")
	h.source.set(domain.PartitionCommercial, snap("K", "Retail", "1"))

	h.notifier.On("SendBatchAlert", mock.Anything, mock.MatchedBy(func(a []notify.AlertPayload) bool {
		return len(a) == 1 && a[0].Partition == string(domain.PartitionResidential) &&
			a[0].Severity == notify.SeverityWarning
	}), mock.Anything).Return(nil).Once()

	report, err := h.engine.RunCycle(context.Background())
	require.ErrorContains(t, err, "bucket unavailable")

	assert.Contains(t, reportFor(t, report, domain.PartitionResidential).Error, "bucket unavailable")
	assert.Equal(t, 1, reportFor(t, report, domain.PartitionCommercial).Ingested)

	job := h.lastJob(t, JobIngestion)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.ErrorText, "bucket unavailable")
	h.notifier.AssertExpectations(t)
}

func TestRunCycle_BadSnapshotsDoNotStopCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionResidential))
	h.source.set(domain.PartitionResidential,
		snap("A", "Detached", "1"),
		snap("B", "Detached", "call for price"),
		snap("", "Detached", "5"),
	)
	h.notifier.On("SendBatchAlert", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	report, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	pr := reportFor(t, report, domain.PartitionResidential)
	assert.Equal(t, 1, pr.Ingested)
	assert.Equal(t, 2, pr.Failed)
	h.notifier.AssertExpectations(t)
}

func TestRunCycle_EmptyFeedSkipsSweep(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionResidential))
	h.source.set(domain.PartitionResidential, snap("A", "Detached", "1"))
	_, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	h.source.set(domain.PartitionResidential)
	report, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	pr := reportFor(t, report, domain.PartitionResidential)
	assert.NotEmpty(t, pr.SweepSkipped)
	assert.Zero(t, pr.Deleted)

	_, err = h.store.GetListing(context.Background(), domain.PartitionResidential, "A")
	require.NoError(t, err)
}

func TestRunCycle_ReconcileDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionCommercial), WithReconcile(false))
	h.source.set(domain.PartitionCommercial, snap("K", "Retail", "1"), snap("L", "Retail", "2"))
	_, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)

	h.source.set(domain.PartitionCommercial, snap("K", "Retail", "1"))
	report, err := h.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, reportFor(t, report, domain.PartitionCommercial).Deleted)
}

func TestRunCycle_HaltedPartitionSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.orch.Halts().Halt(domain.PartitionResidential, "rollback failed")
	h.source.set(domain.PartitionCommercial, snap("K", "Retail", "1"))

	report, err := h.engine.RunCycle(context.Background())
	require.ErrorIs(t, err, ingest.ErrPartitionHalted)

	pr := reportFor(t, report, domain.PartitionResidential)
	assert.True(t, pr.Halted)
	assert.Zero(t, h.source.calls[domain.PartitionResidential], "halted partitions are not fetched")
	assert.Equal(t, 1, reportFor(t, report, domain.PartitionCommercial).Ingested)

	// The halt was already alerted; no cycle summary repeats it.
	h.notifier.AssertNotCalled(t, "SendBatchAlert", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunCycle_RejectsOverlap(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionResidential))
	h.source.block = make(chan struct{})
	h.source.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.RunCycle(context.Background())
		done <- err
	}()

	select {
	case <-h.source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never reached the feed")
	}

	_, err := h.engine.RunCycle(context.Background())
	require.ErrorIs(t, err, ErrCycleRunning)

	close(h.source.block)
	require.NoError(t, <-done)
}

func TestRunReconcile_BusyDuringCycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionResidential))
	h.source.block = make(chan struct{})
	h.source.entered = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.RunCycle(context.Background())
		done <- err
	}()

	select {
	case <-h.source.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("cycle never reached the feed")
	}

	_, err := h.engine.RunReconcile(context.Background(), domain.PartitionResidential, "")
	require.ErrorIs(t, err, ingest.ErrPartitionBusy)

	// Other partitions are not held by this cycle.
	unlock, err := h.orch.TryLockPartition(domain.PartitionCommercial)
	require.NoError(t, err)
	unlock()

	close(h.source.block)
	require.NoError(t, <-done)

	unlock, err = h.orch.TryLockPartition(domain.PartitionResidential)
	require.NoError(t, err, "the cycle releases the partition")
	unlock()
}

func TestRunReconcile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, WithPartitions(domain.PartitionResidential))
	ctx := context.Background()
	res := domain.PartitionResidential

	h.source.set(res, snap("A", "Detached", "1"), snap("B", "Condo", "2"), snap("C", "Condo", "3"))
	_, err := h.engine.RunCycle(ctx)
	require.NoError(t, err)

	// Upstream now lists only B among condos, and no detached at all.
	h.source.set(res, snap("B", "Condo", "2"))

	deleted, err := h.engine.RunReconcile(ctx, res, "Condo")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = h.store.GetListing(ctx, res, "A")
	require.NoError(t, err, "detached listings are outside the sweep")

	job := h.lastJob(t, JobReconcile)
	assert.Equal(t, domain.JobStatusSucceeded, job.Status)

	// A scope with nothing upstream is refused rather than emptied.
	_, err = h.engine.RunReconcile(ctx, res, "Detached")
	require.ErrorIs(t, err, ingest.ErrEmptyActiveSet)
	assert.Equal(t, domain.JobStatusFailed, h.lastJob(t, JobReconcile).Status)
}

func TestRunMaintenance(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	_, err := h.store.InsertJobRun(context.Background(), JobIngestion)
	require.NoError(t, err)

	require.NoError(t, h.engine.RunMaintenance(context.Background()))
	assert.Equal(t, domain.JobStatusRunning, h.lastJob(t, JobIngestion).Status, "recent runs are left alone")
}
