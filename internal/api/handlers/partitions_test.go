package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
	"github.com/donaldgifford/property-price-tracker/internal/store"
	domain "github.com/donaldgifford/property-price-tracker/pkg/types"
)

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) RunReconcile(ctx context.Context, p domain.Partition, propertyType string) (int, error) {
	args := m.Called(ctx, p, propertyType)
	return args.Int(0), args.Error(1)
}

func TestListPartitionsAndResume(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	o.Halts().Halt(domain.PartitionCommercial, "rollback failed")

	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), nil))

	resp := api.Get("/api/v1/partitions")
	require.Equal(t, http.StatusOK, resp.Code)

	var statuses []domain.PartitionStatus
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &statuses))
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, st.Partition == domain.PartitionCommercial, st.Halted, st.Partition)
	}

	resp = api.Post("/api/v1/partitions/commercial/resume")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"partition":"commercial","resumed":true}`, resp.Body.String())
	assert.False(t, o.Halts().Halted(domain.PartitionCommercial))

	resp = api.Post("/api/v1/partitions/commercial/resume")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"partition":"commercial","resumed":false}`, resp.Body.String())

	assert.Equal(t, http.StatusUnprocessableEntity, api.Post("/api/v1/partitions/farm/resume").Code)
}

func TestReconcile_ActiveSet(t *testing.T) {
	t.Parallel()

	o, s := newTestOrchestrator(t)
	p := domain.PartitionResidential
	seedListing(t, o, p, snapshot("R1", "Condo", "Toronto", "1"))
	seedListing(t, o, p, snapshot("R2", "Condo", "Toronto", "2"))
	seedListing(t, o, p, snapshot("R3", "Detached", "Toronto", "3"))

	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), nil))

	resp := api.Post("/api/v1/partitions/residential/reconcile", map[string]any{
		"property_type": "Condo",
		"active_mls":    []string{"R1"},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"partition":"residential","deleted":1}`, resp.Body.String())

	_, err := s.GetListing(context.Background(), p, "R2")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetListing(context.Background(), p, "R3")
	require.NoError(t, err)
	_, err = s.GetPriceHistory(context.Background(), p, "R2")
	require.NoError(t, err, "history survives reconciliation")

	resp = api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"active_mls": []string{}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "empty active set is refused")
}

func TestReconcile_Feed(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)

	rec := &mockReconciler{}
	rec.On("RunReconcile", mock.Anything, domain.PartitionCommercial, "").Return(4, nil).Once()
	rec.On("RunReconcile", mock.Anything, domain.PartitionResidential, "Condo").
		Return(0, errors.New("fetching feed: timeout")).Once()

	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), rec))

	resp := api.Post("/api/v1/partitions/commercial/reconcile")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"partition":"commercial","deleted":4}`, resp.Body.String())

	resp = api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"property_type": "Condo"})
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	rec.AssertExpectations(t)
}

func TestReconcile_NoFeed(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), nil))

	resp := api.Post("/api/v1/partitions/residential/reconcile")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)
	assert.Contains(t, resp.Body.String(), "active_mls is required")
}

func TestReconcile_Halted(t *testing.T) {
	t.Parallel()

	o, _ := newTestOrchestrator(t)
	seedListing(t, o, domain.PartitionResidential, snapshot("R1", "Condo", "Toronto", "1"))
	o.Halts().Halt(domain.PartitionResidential, "test")

	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), nil))

	resp := api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"active_mls": []string{"R9"}})
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestReconcile_TrimsActiveSet(t *testing.T) {
	t.Parallel()

	o, s := newTestOrchestrator(t)
	p := domain.PartitionResidential
	seedListing(t, o, p, snapshot("A", "Condo", "Toronto", "1"))
	seedListing(t, o, p, snapshot("B", "Condo", "Toronto", "2"))

	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), nil))

	resp := api.Post("/api/v1/partitions/residential/reconcile", map[string]any{
		"active_mls": []string{" A", "", "  "},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"partition":"residential","deleted":1}`, resp.Body.String())

	_, err := s.GetListing(context.Background(), p, "A")
	require.NoError(t, err, "padded MLS matches the stored listing")
	_, err = s.GetListing(context.Background(), p, "B")
	require.ErrorIs(t, err, store.ErrNotFound)

	resp = api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"active_mls": []string{" ", ""}})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code, "blank-only active set is empty")
}

func TestReconcile_PartitionBusy(t *testing.T) {
	t.Parallel()

	o, s := newTestOrchestrator(t)
	p := domain.PartitionResidential
	seedListing(t, o, p, snapshot("A", "Condo", "Toronto", "1"))

	rec := &mockReconciler{}
	_, api := humatest.New(t)
	handlers.RegisterPartitionRoutes(api, handlers.NewPartitionsHandler(o, o.Sweeper(), rec))

	unlock, err := o.TryLockPartition(p)
	require.NoError(t, err)

	resp := api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"active_mls": []string{"Z"}})
	assert.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	_, err = s.GetListing(context.Background(), p, "A")
	require.NoError(t, err, "nothing is swept while the partition is held")

	unlock()

	resp = api.Post("/api/v1/partitions/residential/reconcile", map[string]any{"active_mls": []string{"Z"}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.JSONEq(t, `{"partition":"residential","deleted":1}`, resp.Body.String())
	rec.AssertNotCalled(t, "RunReconcile", mock.Anything, mock.Anything, mock.Anything)
}
