package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		method        string
		path          string
		handler       echo.HandlerFunc
		providedReqID string
		wantLogFields []string
	}{
		{
			name:   "logs GET request with generated ID",
			method: http.MethodGet,
			path:   "/api/v1/partitions",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			},
			wantLogFields: []string{
				"level=INFO",
				"method=GET",
				"path=/api/v1/partitions",
				"status=200",
				"duration_ms=",
				"request_id=",
			},
		},
		{
			name:   "client error logs at warn",
			method: http.MethodPost,
			path:   "/api/v1/partitions/farm/listings",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusUnprocessableEntity)
			},
			wantLogFields: []string{"level=WARN", "status=422"},
		},
		{
			name:   "server error logs at error",
			method: http.MethodPost,
			path:   "/api/v1/ingest",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusInternalServerError)
			},
			wantLogFields: []string{"level=ERROR", "status=500"},
		},
		{
			name:   "returned echo error uses its code",
			method: http.MethodGet,
			path:   "/missing",
			handler: func(_ echo.Context) error {
				return echo.ErrNotFound
			},
			wantLogFields: []string{"level=WARN", "status=404"},
		},
		{
			name:   "uses provided request ID",
			method: http.MethodGet,
			path:   "/readyz",
			handler: func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			},
			providedReqID: "custom-req-id-123",
			wantLogFields: []string{"request_id=custom-req-id-123"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			e := echo.New()
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			if tt.providedReqID != "" {
				req.Header.Set(requestIDHeader, tt.providedReqID)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			_ = RequestLog(logger)(tt.handler)(c)

			for _, field := range tt.wantLogFields {
				assert.Contains(t, buf.String(), field)
			}

			respID := rec.Header().Get(requestIDHeader)
			assert.NotEmpty(t, respID)
			if tt.providedReqID != "" {
				assert.Equal(t, tt.providedReqID, respID)
			}
			assert.NotEmpty(t, c.Get(requestIDKey))
		})
	}
}

func TestRequestLog_PartitionParam(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := echo.New()
	e.Use(RequestLog(logger))
	e.GET("/api/v1/partitions/:partition/listings", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/partitions/commercial/listings", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "partition=commercial")
}
