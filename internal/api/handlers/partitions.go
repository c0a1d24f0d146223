package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

// PartitionController reports and clears ingestion halts and serialises
// reconciliation with feed cycles.
type PartitionController interface {
	Statuses() []domain.PartitionStatus
	Resume(ctx context.Context, p domain.Partition) (bool, error)
	TryLockPartition(p domain.Partition) (func(), error)
}

// Pruner deletes listings absent from an explicit active set.
type Pruner interface {
	PruneAbsent(ctx context.Context, p domain.Partition, propertyType string, active map[string]struct{}) (int, error)
}

// Reconciler reconciles a partition against the configured feed.
type Reconciler interface {
	RunReconcile(ctx context.Context, p domain.Partition, propertyType string) (int, error)
}

// PartitionsHandler handles partition status and reconciliation.
type PartitionsHandler struct {
	ctl        PartitionController
	pruner     Pruner
	reconciler Reconciler
}

// NewPartitionsHandler creates a new PartitionsHandler. reconciler may be
// nil when no feed is configured; reconciliation then requires an explicit
// active set.
func NewPartitionsHandler(ctl PartitionController, pruner Pruner, reconciler Reconciler) *PartitionsHandler {
	return &PartitionsHandler{ctl: ctl, pruner: pruner, reconciler: reconciler}
}

// ListPartitionsOutput lists every partition and its halt state.
type ListPartitionsOutput struct {
	Body []domain.PartitionStatus
}

// ResumeOutput reports whether a halt was cleared.
type ResumeOutput struct {
	Body struct {
		Partition string `json:"partition"`
		Resumed   bool   `json:"resumed" doc:"False when the partition was not halted"`
	}
}

// ReconcileRequest scopes a reconciliation run.
type ReconcileRequest struct {
	PropertyType string   `json:"property_type,omitempty" doc:"Restrict the sweep to one property type"`
	ActiveMLS    []string `json:"active_mls,omitempty"    doc:"MLS values still listed upstream; omitted means read the feed"`
}

// ReconcileInput is the input for a reconciliation run.
type ReconcileInput struct {
	PartitionPath
	Body *ReconcileRequest `required:"false"`
}

// ReconcileOutput reports how many listings were removed.
type ReconcileOutput struct {
	Body struct {
		Partition string `json:"partition"`
		Deleted   int    `json:"deleted"`
	}
}

// ListPartitions returns the halt status of every partition.
func (h *PartitionsHandler) ListPartitions(_ context.Context, _ *struct{}) (*ListPartitionsOutput, error) {
	return &ListPartitionsOutput{Body: h.ctl.Statuses()}, nil
}

// Resume clears a halt left by a failed rollback.
func (h *PartitionsHandler) Resume(ctx context.Context, input *PartitionPath) (*ResumeOutput, error) {
	resumed, err := h.ctl.Resume(ctx, domain.Partition(input.Partition))
	if err != nil {
		return nil, writeError(err)
	}

	resp := &ResumeOutput{}
	resp.Body.Partition = input.Partition
	resp.Body.Resumed = resumed
	return resp, nil
}

// Reconcile removes listings no longer present upstream.
func (h *PartitionsHandler) Reconcile(ctx context.Context, input *ReconcileInput) (*ReconcileOutput, error) {
	p := domain.Partition(input.Partition)
	req := input.Body
	if req == nil {
		req = &ReconcileRequest{}
	}

	var (
		deleted int
		err     error
	)
	switch {
	case req.ActiveMLS != nil:
		deleted, err = h.pruneActive(ctx, p, req)
	case h.reconciler != nil:
		deleted, err = h.reconciler.RunReconcile(ctx, p, req.PropertyType)
	default:
		return nil, huma.Error422UnprocessableEntity("active_mls is required when no feed is configured")
	}
	if err != nil {
		return nil, writeError(err)
	}

	resp := &ReconcileOutput{}
	resp.Body.Partition = input.Partition
	resp.Body.Deleted = deleted
	return resp, nil
}

// pruneActive sweeps against the request's explicit active set while holding
// the partition, so a running feed cycle is never swept underneath.
func (h *PartitionsHandler) pruneActive(ctx context.Context, p domain.Partition, req *ReconcileRequest) (int, error) {
	active := make(map[string]struct{}, len(req.ActiveMLS))
	for _, mls := range req.ActiveMLS {
		if mls = strings.TrimSpace(mls); mls != "" {
			active[mls] = struct{}{}
		}
	}

	unlock, err := h.ctl.TryLockPartition(p)
	if err != nil {
		return 0, err
	}
	defer unlock()

	return h.pruner.PruneAbsent(ctx, p, req.PropertyType, active)
}

// RegisterPartitionRoutes registers partition endpoints with the Huma API.
func RegisterPartitionRoutes(api huma.API, h *PartitionsHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-partitions",
		Method:      http.MethodGet,
		Path:        "/api/v1/partitions",
		Summary:     "List partitions",
		Description: "Returns every partition and whether its ingestion is halted.",
		Tags:        []string{"partitions"},
	}, h.ListPartitions)

	huma.Register(api, huma.Operation{
		OperationID: "resume-partition",
		Method:      http.MethodPost,
		Path:        "/api/v1/partitions/{partition}/resume",
		Summary:     "Resume a halted partition",
		Tags:        []string{"partitions"},
	}, h.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "reconcile-partition",
		Method:      http.MethodPost,
		Path:        "/api/v1/partitions/{partition}/reconcile",
		Summary:     "Remove listings no longer upstream",
		Description: "Deletes listings absent from the active set. Price history is kept. " +
			"Returns 409 while a feed cycle or another reconciliation holds the partition.",
		Tags:        []string{"partitions"},
		Errors: []int{
			http.StatusConflict,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, h.Reconcile)
}
