package ingest

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/donaldgifford/property-price-tracker/internal/metrics"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// Sweeper removes listings whose MLS is no longer in the upstream active set.
// Price history rows are never touched.
type Sweeper struct {
	o *Orchestrator
}

// Sweeper returns a Sweeper sharing the orchestrator's store, halt registry
// and notifier.
func (o *Orchestrator) Sweeper() *Sweeper {
	return &Sweeper{o: o}
}

// PruneAbsent deletes, in one transaction, every listing of p whose MLS is
// not in active. A non-empty propertyType restricts the sweep to that type.
// Active MLS values are trimmed the way ingestion trims them; blank values
// are ignored. It returns the number of listings deleted.
//
// Callers that race with feed cycles hold the partition lock from
// Orchestrator.LockPartition or TryLockPartition.
func (s *Sweeper) PruneAbsent(
	ctx context.Context,
	p domain.Partition,
	propertyType string,
	active map[string]struct{},
) (_ int, err error) {
	o := s.o

	if !p.Valid() {
		return 0, &ValidationError{Field: "partition", Reason: fmt.Sprintf("unknown partition %q", p)}
	}
	active = NormalizeActiveSet(active)
	if len(active) == 0 {
		metrics.SweepRefusedTotal.WithLabelValues(string(p)).Inc()
		o.log.Warn("reconciliation refused, active set is empty", "partition", p)
		return 0, ErrEmptyActiveSet
	}
	if o.halts.Halted(p) {
		return 0, fmt.Errorf("%s: %w", p, ErrPartitionHalted)
	}

	ctx, span := o.tracer.Start(ctx, "ingest.PruneAbsent", trace.WithAttributes(
		attribute.String("partition", string(p)),
		attribute.String("property_type", propertyType),
		attribute.Int("active", len(active)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var halt *haltEvent
	defer func() {
		if halt != nil {
			o.recordHalt(ctx, halt)
		}
	}()

	conn, err := o.store.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Release()

	stored, err := conn.ListMLS(ctx, p, propertyType)
	if err != nil {
		return 0, fmt.Errorf("listing stored mls values: %w", err)
	}

	var batch store.Batch
	for _, mls := range stored {
		if _, ok := active[mls]; ok {
			continue
		}
		batch = append(batch, store.WriteOperation{
			Table: p.ListingsTable(),
			Kind:  store.OpDelete,
			Key:   mls,
		})
	}

	if len(batch) == 0 {
		return 0, nil
	}

	if halt, err = o.apply(ctx, conn, p, batch); err != nil {
		return 0, err
	}

	metrics.SweepDeletedTotal.WithLabelValues(string(p)).Add(float64(len(batch)))
	o.log.Info("reconciliation removed absent listings",
		"partition", p,
		"property_type", propertyType,
		"deleted", len(batch),
		"stored", len(stored),
	)

	return len(batch), nil
}

// NormalizeActiveSet returns active with every MLS trimmed and blanks
// dropped. It returns active itself when nothing needs changing.
func NormalizeActiveSet(active map[string]struct{}) map[string]struct{} {
	clean := true
	for mls := range active {
		if mls == "" || strings.TrimSpace(mls) != mls {
			clean = false
			break
		}
	}
	if clean {
		return active
	}

	out := make(map[string]struct{}, len(active))
	for mls := range active {
		if mls = strings.TrimSpace(mls); mls != "" {
			out[mls] = struct{}{}
		}
	}
	return out
}
