package handlers_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donaldgifford/property-price-tracker/internal/api/handlers"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthz(t *testing.T) {
	t.Parallel()

	h := handlers.NewHealthHandler(pinger{err: errors.New("down")}, nil)

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody), rec)

	require.NoError(t, h.Healthz(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		store      handlers.Pinger
		cache      handlers.Pinger
		wantStatus int
		wantBody   string
	}{
		{name: "ready without cache", store: pinger{}, wantStatus: http.StatusOK, wantBody: `{"status":"ready"}`},
		{name: "ready with cache", store: pinger{}, cache: pinger{}, wantStatus: http.StatusOK, wantBody: `{"status":"ready"}`},
		{name: "cache down degrades", store: pinger{}, cache: pinger{err: errors.New("refused")}, wantStatus: http.StatusOK, wantBody: `{"status":"degraded"}`},
		{name: "store down", store: pinger{err: errors.New("refused")}, cache: pinger{}, wantStatus: http.StatusServiceUnavailable, wantBody: `{"status":"unavailable"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := handlers.NewHealthHandler(tt.store, tt.cache)

			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/readyz", http.NoBody), rec)

			require.NoError(t, h.Readyz(c))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
