// Package engine runs feed cycles: it pulls full snapshot sets from a feed
// source, ingests them with bounded concurrency and reconciles each
// partition against what the feed still lists.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/donaldgifford/property-price-tracker/internal/feed"
	"github.com/donaldgifford/property-price-tracker/internal/ingest"
	"github.com/donaldgifford/property-price-tracker/internal/metrics"
	"github.com/donaldgifford/property-price-tracker/internal/notify"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Job names recorded in job_runs.
const (
	JobIngestion   = "ingestion"
	JobReconcile   = "reconcile"
	JobMaintenance = "maintenance"
)

const (
	defaultConcurrency = 4
	staleJobAge        = 2 * time.Hour
	notifyTimeout      = 10 * time.Second
	instrumentName     = "github.com/donaldgifford/property-price-tracker/internal/engine"
)

// ErrCycleRunning is returned when a cycle is requested while one is active.
var ErrCycleRunning = errors.New("ingestion cycle already running")

// PartitionReport summarises one partition of a cycle.
type PartitionReport struct {
	Partition       domain.Partition              `json:"partition"`
	Fetched         int                           `json:"fetched"`
	Ingested        int                           `json:"ingested"`
	Failed          int                           `json:"failed"`
	HistoryAppended int                           `json:"history_appended"`
	Classifications map[ingest.Classification]int `json:"classifications"`
	Deleted         int                           `json:"deleted"`
	SweepSkipped    string                        `json:"sweep_skipped,omitempty"`
	Halted          bool                          `json:"halted"`
	Error           string                        `json:"error,omitempty"`
}

// CycleReport summarises a full feed cycle.
type CycleReport struct {
	JobRunID   string            `json:"job_run_id"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Partitions []PartitionReport `json:"partitions"`
}

// Engine orchestrates feed cycles and reconciliation.
type Engine struct {
	store    store.Store
	orch     *ingest.Orchestrator
	source   feed.Source
	notifier notify.Notifier
	log      *slog.Logger

	partitions  []domain.Partition
	concurrency int
	limiter     *rate.Limiter
	reconcile   bool

	running sync.Mutex
	cycles  metric.Int64Counter
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = l
	}
}

// WithNotifier sets the notifier used for cycle summaries.
func WithNotifier(n notify.Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithPartitions restricts cycles to the given partitions.
func WithPartitions(ps ...domain.Partition) EngineOption {
	return func(e *Engine) {
		e.partitions = ps
	}
}

// WithConcurrency sets how many snapshots are ingested in parallel.
func WithConcurrency(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithRateLimit throttles ingestion to rps snapshots per second. Zero
// disables throttling.
func WithRateLimit(rps float64, burst int) EngineOption {
	return func(e *Engine) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithReconcile enables the sweep that follows each partition's ingestion.
func WithReconcile(enabled bool) EngineOption {
	return func(e *Engine) {
		e.reconcile = enabled
	}
}

// NewEngine creates a new Engine with injected dependencies.
func NewEngine(
	s store.Store,
	o *ingest.Orchestrator,
	src feed.Source,
	opts ...EngineOption,
) *Engine {
	eng := &Engine{
		store:       s,
		orch:        o,
		source:      src,
		log:         slog.Default(),
		partitions:  domain.Partitions,
		concurrency: defaultConcurrency,
		reconcile:   true,
	}
	for _, opt := range opts {
		opt(eng)
	}
	if eng.notifier == nil {
		eng.notifier = notify.NewNoOpNotifier(eng.log)
	}
	// The global meter is a no-op until telemetry is enabled.
	cycles, err := otel.Meter(instrumentName).Int64Counter(
		"ppt.engine.cycles",
		metric.WithDescription("Feed cycles run, by outcome."),
	)
	if err != nil {
		cycles = noop.Int64Counter{}
	}
	eng.cycles = cycles
	return eng
}

// RunCycle fetches and ingests every configured partition, then reconciles
// it. Only one cycle runs at a time.
func (eng *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !eng.running.TryLock() {
		return nil, ErrCycleRunning
	}
	defer eng.running.Unlock()

	ctx, span := otel.Tracer(instrumentName).Start(ctx, "engine.RunCycle")
	defer span.End()

	start := time.Now()
	report := &CycleReport{StartedAt: start.UTC()}

	jobID, err := eng.store.InsertJobRun(ctx, JobIngestion)
	if err != nil {
		return nil, fmt.Errorf("recording job run: %w", err)
	}
	report.JobRunID = jobID

	var (
		errs []error
		rows int
	)
	for _, p := range eng.partitions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		pr, err := eng.runPartition(ctx, p)
		if err != nil {
			pr.Error = err.Error()
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
		rows += pr.Ingested + pr.Deleted
		report.Partitions = append(report.Partitions, pr)
	}
	report.Duration = time.Since(start)

	cycleErr := errors.Join(errs...)
	eng.completeJob(ctx, jobID, cycleErr, rows)
	eng.notifySummary(ctx, report)

	outcome := "succeeded"
	if cycleErr != nil {
		outcome = "failed"
		span.RecordError(cycleErr)
		span.SetStatus(codes.Error, cycleErr.Error())
	}
	span.SetAttributes(attribute.String("job_run_id", jobID), attribute.Int("rows_affected", rows))
	eng.cycles.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))

	eng.log.Info("ingestion cycle complete",
		"job_run_id", jobID,
		"duration", report.Duration,
		"rows_affected", rows,
		"error", cycleErr,
	)
	return report, cycleErr
}

func (eng *Engine) runPartition(ctx context.Context, p domain.Partition) (PartitionReport, error) {
	pr := PartitionReport{
		Partition:       p,
		Classifications: make(map[ingest.Classification]int),
	}

	unlock := eng.orch.LockPartition(p)
	defer unlock()

	start := time.Now()
	defer func() {
		metrics.IngestionDuration.WithLabelValues(string(p)).Observe(time.Since(start).Seconds())
	}()

	if eng.orch.Halts().Halted(p) {
		pr.Halted = true
		return pr, ingest.ErrPartitionHalted
	}

	snaps, err := eng.source.Fetch(ctx, p)
	if err != nil {
		metrics.FeedErrorsTotal.WithLabelValues(string(p)).Inc()
		return pr, fmt.Errorf("fetching feed: %w", err)
	}
	pr.Fetched = len(snaps)
	metrics.FeedSnapshotsTotal.WithLabelValues(string(p)).Add(float64(len(snaps)))

	active, stopErr := eng.ingestAll(ctx, p, snaps, &pr)
	if stopErr != nil {
		pr.Halted = eng.orch.Halts().Halted(p)
		return pr, stopErr
	}

	if !eng.reconcile {
		return pr, nil
	}

	deleted, err := eng.orch.Sweeper().PruneAbsent(ctx, p, "", active)
	switch {
	case errors.Is(err, ingest.ErrEmptyActiveSet):
		pr.SweepSkipped = "feed returned no listings"
	case err != nil:
		pr.Halted = eng.orch.Halts().Halted(p)
		return pr, fmt.Errorf("reconciling: %w", err)
	default:
		pr.Deleted = deleted
	}
	return pr, nil
}

// ingestAll ingests snaps and returns the set of MLS values the feed lists.
// Per-snapshot failures are counted and logged; a halt stops the partition.
func (eng *Engine) ingestAll(
	ctx context.Context,
	p domain.Partition,
	snaps []*domain.Snapshot,
	pr *PartitionReport,
) (map[string]struct{}, error) {
	active := make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		if mls := strings.TrimSpace(s.MLS); mls != "" {
			active[mls] = struct{}{}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(eng.concurrency)

	for _, snap := range snaps {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if eng.limiter != nil {
				if err := eng.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			res, err := eng.orch.Ingest(gctx, p, snap)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				pr.Failed++
				eng.log.Warn("snapshot ingestion failed",
					"partition", p,
					"mls", snap.MLS,
					"kind", ingest.ErrorKind(err),
					"error", err,
				)
				if isHalt(err) {
					return err
				}
				return nil
			}
			pr.Ingested++
			pr.Classifications[res.Classification]++
			if res.HistoryAppended {
				pr.HistoryAppended++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return active, nil
}

func isHalt(err error) bool {
	var fatal *store.FatalRollbackFailure
	return errors.As(err, &fatal) || errors.Is(err, ingest.ErrPartitionHalted)
}

// RunReconcile fetches the feed for p and deletes stored listings it no
// longer lists, without ingesting anything. It returns ingest.ErrPartitionBusy
// while a cycle or another reconciliation holds p.
func (eng *Engine) RunReconcile(ctx context.Context, p domain.Partition, propertyType string) (int, error) {
	unlock, err := eng.orch.TryLockPartition(p)
	if err != nil {
		return 0, err
	}
	defer unlock()

	jobID, err := eng.store.InsertJobRun(ctx, JobReconcile)
	if err != nil {
		return 0, fmt.Errorf("recording job run: %w", err)
	}

	deleted, err := eng.reconcilePartition(ctx, p, propertyType)
	eng.completeJob(ctx, jobID, err, deleted)
	return deleted, err
}

func (eng *Engine) reconcilePartition(ctx context.Context, p domain.Partition, propertyType string) (int, error) {
	snaps, err := eng.source.Fetch(ctx, p)
	if err != nil {
		metrics.FeedErrorsTotal.WithLabelValues(string(p)).Inc()
		return 0, fmt.Errorf("fetching feed: %w", err)
	}

	active := make(map[string]struct{}, len(snaps))
	for _, s := range snaps {
		if propertyType != "" && !strings.EqualFold(s.PropertyType, propertyType) {
			continue
		}
		if mls := strings.TrimSpace(s.MLS); mls != "" {
			active[mls] = struct{}{}
		}
	}

	return eng.orch.Sweeper().PruneAbsent(ctx, p, propertyType, active)
}

// RunMaintenance marks job runs left 'running' by a crashed process.
func (eng *Engine) RunMaintenance(ctx context.Context) error {
	n, err := eng.store.RecoverStaleJobRuns(ctx, staleJobAge)
	if err != nil {
		return fmt.Errorf("recovering stale job runs: %w", err)
	}
	if n > 0 {
		eng.log.Warn("marked stale job runs as crashed", "count", n)
	}
	return nil
}

func (eng *Engine) completeJob(ctx context.Context, id string, err error, rows int) {
	status, errText := domain.JobStatusSucceeded, ""
	if err != nil {
		status, errText = domain.JobStatusFailed, err.Error()
	}
	// The run is recorded even when ctx was canceled.
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if cerr := eng.store.CompleteJobRun(cctx, id, status, errText, rows); cerr != nil {
		eng.log.Error("completing job run", "job_run_id", id, "error", cerr)
	}
}

// notifySummary sends one batch alert listing the partitions that failed or
// are halted. Clean cycles send nothing.
func (eng *Engine) notifySummary(ctx context.Context, report *CycleReport) {
	var alerts []notify.AlertPayload
	for _, pr := range report.Partitions {
		if pr.Error == "" && pr.Failed == 0 {
			continue
		}
		// Already reported when the partition was halted.
		if pr.Halted && pr.Fetched == 0 {
			continue
		}
		sev := notify.SeverityWarning
		if pr.Halted {
			sev = notify.SeverityCritical
		}
		alerts = append(alerts, notify.AlertPayload{
			Severity:  sev,
			Partition: string(pr.Partition),
			Title:     fmt.Sprintf("%s: %d of %d snapshots failed", pr.Partition, pr.Failed, pr.Fetched),
			Detail:    pr.Error,
			JobRunID:  report.JobRunID,
			Time:      time.Now(),
		})
	}
	if len(alerts) == 0 {
		return
	}

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := eng.notifier.SendBatchAlert(nctx, alerts, "Ingestion cycle problems"); err != nil {
		eng.log.Error("sending cycle summary", "error", err)
	}
}
