package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/donaldgifford/property-price-tracker/internal/metrics"
	"github.com/donaldgifford/property-price-tracker/internal/notify"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

const (
	defaultWriteTimeout = 30 * time.Second
	notifyTimeout       = 10 * time.Second
	tracerName          = "github.com/donaldgifford/property-price-tracker/internal/ingest"
)

// Classification is the outcome of looking up an incoming snapshot.
type Classification string

// Classification constants.
const (
	NotFound           Classification = "not_found"
	FoundWithNewImages Classification = "found_with_new_images"
	FoundNoImageChange Classification = "found_no_image_change"
)

// Result describes a completed ingestion.
type Result struct {
	MLS             string          `json:"mls"`
	Classification  Classification  `json:"classification"`
	HistoryAppended bool            `json:"history_appended"`
	Listing         *domain.Listing `json:"listing"`
}

// Orchestrator runs Classify, Diff, History and Write for one snapshot at a
// time. Different MLS values may be ingested concurrently; the same MLS is
// serialised within the process.
type Orchestrator struct {
	store        store.Store
	diff         *DiffEngine
	halts        *HaltRegistry
	notifier     notify.Notifier
	locks        *keyLock
	partitions   *keyLock
	log          *slog.Logger
	tracer       trace.Tracer
	writeTimeout time.Duration
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithNotifier sets the notifier used for operator alerts.
func WithNotifier(n notify.Notifier) Option {
	return func(o *Orchestrator) {
		o.notifier = n
	}
}

// WithDiffEngine sets a custom diff engine.
func WithDiffEngine(d *DiffEngine) Option {
	return func(o *Orchestrator) {
		o.diff = d
	}
}

// WithHaltRegistry shares a halt registry with other components.
func WithHaltRegistry(h *HaltRegistry) Option {
	return func(o *Orchestrator) {
		o.halts = h
	}
}

// WithWriteTimeout bounds each batch write.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// NewOrchestrator creates a new Orchestrator with injected dependencies.
func NewOrchestrator(s store.Store, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:        s,
		diff:         NewDiffEngine(DefaultCountry),
		halts:        NewHaltRegistry(),
		locks:        newKeyLock(),
		partitions:   newKeyLock(),
		log:          slog.Default(),
		tracer:       otel.Tracer(tracerName),
		writeTimeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.notifier == nil {
		o.notifier = notify.NewNoOpNotifier(o.log)
	}
	return o
}

// Halts returns the registry of halted partitions.
func (o *Orchestrator) Halts() *HaltRegistry {
	return o.halts
}

// Ingest applies one snapshot. Errors before the write leave no side effects;
// write errors are rolled back. A failed rollback halts the partition.
func (o *Orchestrator) Ingest(
	ctx context.Context,
	p domain.Partition,
	snap *domain.Snapshot,
) (*Result, error) {
	res, err := o.ingest(ctx, p, snap)
	if err != nil {
		metrics.IngestionErrorsTotal.WithLabelValues(string(p), ErrorKind(err)).Inc()
		return nil, err
	}
	metrics.IngestionListingsTotal.WithLabelValues(string(p), string(res.Classification)).Inc()
	if res.HistoryAppended {
		metrics.PriceHistoryAppendsTotal.WithLabelValues(string(p)).Inc()
	}
	return res, nil
}

func (o *Orchestrator) ingest(
	ctx context.Context,
	p domain.Partition,
	snap *domain.Snapshot,
) (_ *Result, err error) {
	if !p.Valid() {
		return nil, &ValidationError{Field: "partition", Reason: fmt.Sprintf("unknown partition %q", p)}
	}
	if snap == nil {
		return nil, &ValidationError{Field: "snapshot", Reason: "is nil"}
	}
	mls := strings.TrimSpace(snap.MLS)
	if mls == "" {
		return nil, &ValidationError{Field: "MLS", Reason: "is required"}
	}

	ctx, span := o.tracer.Start(ctx, "ingest.Ingest", trace.WithAttributes(
		attribute.String("partition", string(p)),
		attribute.String("mls", mls),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	unlock := o.locks.lock(string(p) + "/" + mls)
	defer unlock()

	if o.halts.Halted(p) {
		return nil, fmt.Errorf("%s: %w", p, ErrPartitionHalted)
	}

	// Registered before the connection is released so that recording a halt
	// never waits on the connection this ingestion holds.
	var halt *haltEvent
	defer func() {
		if halt != nil {
			o.recordHalt(ctx, halt)
		}
	}()

	conn, err := o.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	// Classify.
	existing, err := conn.GetListing(ctx, p, mls)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("classifying %s: %w", mls, err)
	}
	class := Classify(existing, snap)
	span.SetAttributes(attribute.String("classification", string(class)))

	// Diff.
	var (
		op      store.WriteOperation
		listing *domain.Listing
	)
	if class == NotFound {
		op, listing, err = o.diff.ComputeCreate(p, snap)
	} else {
		op, listing, err = o.diff.ComputeUpdate(p, snap, existing, class == FoundWithNewImages)
	}
	if err != nil {
		return nil, err
	}

	// History. The ledger write goes first so the listing write sees it
	// in the same transaction.
	histOp, err := RecordPriceObservation(ctx, conn, p, mls, listing.TimestampSQL, listing.ListPrice)
	if err != nil {
		return nil, err
	}

	batch := make(store.Batch, 0, 2)
	if histOp != nil {
		batch = append(batch, *histOp)
	}
	batch = append(batch, op)

	// Write.
	if halt, err = o.apply(ctx, conn, p, batch); err != nil {
		return nil, err
	}

	o.log.Debug("listing ingested",
		"partition", p,
		"mls", mls,
		"classification", class,
		"history_appended", histOp != nil,
	)

	return &Result{
		MLS:             mls,
		Classification:  class,
		HistoryAppended: histOp != nil,
		Listing:         listing,
	}, nil
}

// haltEvent is a partition halt that still has to be persisted and
// announced once the failing connection is released.
type haltEvent struct {
	partition domain.Partition
	batch     store.Batch
	cause     error
}

// apply writes batch with the write timeout and handles failures. A non-nil
// haltEvent means this write halted the partition; pass it to recordHalt
// after releasing conn.
func (o *Orchestrator) apply(
	ctx context.Context,
	conn store.Conn,
	p domain.Partition,
	batch store.Batch,
) (*haltEvent, error) {
	wctx, cancel := context.WithTimeout(ctx, o.writeTimeout)
	defer cancel()

	start := time.Now()
	err := conn.ApplyBatch(wctx, batch)
	metrics.BatchWriteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		return o.handleWriteError(p, batch, err), err
	}
	return nil, nil
}

func (o *Orchestrator) handleWriteError(p domain.Partition, batch store.Batch, err error) *haltEvent {
	var fatal *store.FatalRollbackFailure
	if errors.As(err, &fatal) {
		metrics.FatalRollbacksTotal.WithLabelValues(string(p)).Inc()
		o.log.Error("rollback failed, halting partition", "partition", p, "error", err)
		if o.halts.Halt(p, err.Error()) {
			return &haltEvent{partition: p, batch: batch, cause: err}
		}
		return nil
	}

	metrics.WriteFailuresTotal.WithLabelValues(string(p)).Inc()
	o.log.Warn("batch write rolled back", "partition", p, "operations", len(batch), "error", err)
	return nil
}

// recordHalt persists a new halt so it survives a restart, then alerts
// operators. A failed save is logged; the in-memory halt still applies.
func (o *Orchestrator) recordHalt(ctx context.Context, ev *haltEvent) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := o.store.SaveHalt(sctx, o.halts.Status(ev.partition)); err != nil {
		o.log.Error("persisting partition halt", "partition", ev.partition, "error", err)
	}
	o.alertHalted(sctx, ev.partition, ev.batch, ev.cause)
}

// LoadHalts restores halts recorded before the last restart. Call it once at
// startup, before any ingestion.
func (o *Orchestrator) LoadHalts(ctx context.Context) error {
	halts, err := o.store.ListHalts(ctx)
	if err != nil {
		return fmt.Errorf("loading partition halts: %w", err)
	}
	for _, st := range halts {
		if !st.Partition.Valid() {
			o.log.Warn("ignoring halt for unknown partition", "partition", st.Partition)
			continue
		}
		o.halts.restore(st)
		o.log.Warn("partition halted since before restart",
			"partition", st.Partition,
			"halted_at", st.HaltedAt,
			"reason", st.Reason,
		)
	}
	return nil
}

// LockPartition blocks until no ingestion cycle or reconciliation holds p.
func (o *Orchestrator) LockPartition(p domain.Partition) func() {
	return o.partitions.lock(string(p))
}

// TryLockPartition is LockPartition without waiting. It returns
// ErrPartitionBusy while a cycle or reconciliation holds p.
func (o *Orchestrator) TryLockPartition(p domain.Partition) (func(), error) {
	unlock, ok := o.partitions.tryLock(string(p))
	if !ok {
		return nil, fmt.Errorf("%s: %w", p, ErrPartitionBusy)
	}
	return unlock, nil
}

func (o *Orchestrator) alertHalted(ctx context.Context, p domain.Partition, batch store.Batch, cause error) {
	nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
	defer cancel()

	alert := &notify.AlertPayload{
		Severity:  notify.SeverityCritical,
		Partition: string(p),
		Title:     fmt.Sprintf("Ingestion halted for %s", p),
		Detail:    cause.Error() + "\nResume with POST /api/v1/partitions/" + string(p) + "/resume once the database is verified.",
		Time:      time.Now(),
	}
	if len(batch) > 0 {
		alert.MLS = batch[0].Key
	}

	if err := o.notifier.SendAlert(nctx, alert); err != nil {
		o.log.Error("sending halt notification", "partition", p, "error", err)
	}
}

// Statuses returns the halt state of every partition.
func (o *Orchestrator) Statuses() []domain.PartitionStatus {
	return o.halts.Statuses()
}

// Resume clears a halt, including its persisted record, and notifies
// operators. It reports false when p was not halted. The halt stays in place
// if its record cannot be deleted.
func (o *Orchestrator) Resume(ctx context.Context, p domain.Partition) (bool, error) {
	if !o.halts.Halted(p) {
		return false, nil
	}
	if err := o.store.DeleteHalt(ctx, p); err != nil {
		return false, fmt.Errorf("resuming %s: %w", p, err)
	}
	if !o.halts.Resume(p) {
		return false, nil
	}
	o.log.Info("partition resumed", "partition", p)

	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := o.notifier.SendAlert(nctx, &notify.AlertPayload{
		Severity:  notify.SeverityInfo,
		Partition: string(p),
		Title:     fmt.Sprintf("Ingestion resumed for %s", p),
		Time:      time.Now(),
	}); err != nil {
		o.log.Error("sending resume notification", "partition", p, "error", err)
	}
	return true, nil
}

// Classify decides which path an incoming snapshot takes. Images count as
// new only when supplied and different, after ordering, from the stored list.
func Classify(existing *domain.Listing, snap *domain.Snapshot) Classification {
	switch {
	case existing == nil:
		return NotFound
	case snap.HasImages() && !slices.Equal(SortImages(snap.Images), existing.PhotoLink):
		return FoundWithNewImages
	default:
		return FoundNoImageChange
	}
}

// ErrorKind returns a short label for err, used in metrics and job runs.
func ErrorKind(err error) string {
	var (
		fatal *store.FatalRollbackFailure
		wf    *store.WriteFailure
	)
	switch {
	case errors.As(err, &fatal):
		return "fatal_rollback"
	case errors.Is(err, ErrPartitionHalted):
		return "halted"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrInvalidPriceFormat):
		return "invalid_price"
	case errors.As(err, &wf):
		return "write_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "other"
	}
}
