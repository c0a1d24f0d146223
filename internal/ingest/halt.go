package ingest

import (
	"sync"
	"time"

	"github.com/donaldgifford/property-price-tracker/internal/metrics"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// HaltRegistry tracks partitions whose automated ingestion is stopped after a
// failed rollback. It is the in-memory view; the Orchestrator persists halts
// through the store and restores them with LoadHalts.
type HaltRegistry struct {
	mu     sync.RWMutex
	halted map[domain.Partition]domain.PartitionStatus
	now    func() time.Time
}

// NewHaltRegistry creates an empty registry.
func NewHaltRegistry() *HaltRegistry {
	return &HaltRegistry{
		halted: make(map[domain.Partition]domain.PartitionStatus),
		now:    time.Now,
	}
}

// Halt stops ingestion for p. It reports false if p was already halted, in
// which case the original reason is kept.
func (h *HaltRegistry) Halt(p domain.Partition, reason string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.halted[p]; ok {
		return false
	}
	at := h.now().UTC()
	h.halted[p] = domain.PartitionStatus{Partition: p, Halted: true, Reason: reason, HaltedAt: &at}
	metrics.PartitionHalted.WithLabelValues(string(p)).Set(1)
	return true
}

// restore marks p halted with a previously recorded status.
func (h *HaltRegistry) restore(st domain.PartitionStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st.Halted = true
	h.halted[st.Partition] = st
	metrics.PartitionHalted.WithLabelValues(string(st.Partition)).Set(1)
}

// Resume clears the halt on p. It reports whether p was halted.
func (h *HaltRegistry) Resume(p domain.Partition) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.halted[p]; !ok {
		return false
	}
	delete(h.halted, p)
	metrics.PartitionHalted.WithLabelValues(string(p)).Set(0)
	return true
}

// Halted reports whether p is halted.
func (h *HaltRegistry) Halted(p domain.Partition) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.halted[p]
	return ok
}

// Status returns the halt state of p.
func (h *HaltRegistry) Status(p domain.Partition) domain.PartitionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.halted[p]; ok {
		return s
	}
	return domain.PartitionStatus{Partition: p}
}

// Statuses returns the state of every known partition.
func (h *HaltRegistry) Statuses() []domain.PartitionStatus {
	out := make([]domain.PartitionStatus, 0, len(domain.Partitions))
	for _, p := range domain.Partitions {
		out = append(out, h.Status(p))
	}
	return out
}
