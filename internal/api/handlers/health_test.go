package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		database DatabasePinger
		engine   *fakeEngine
		status   int
		checks   map[string]string
	}{
		{
			name:   "in-memory registry",
			engine: &fakeEngine{},
			status: http.StatusOK,
			checks: map[string]string{"database": StatusNotConfigured, "scanner": "idle"},
		},
		{
			name:     "database up while scanning",
			database: pingerFunc(func(context.Context) error { return nil }),
			engine:   &fakeEngine{scanning: true},
			status:   http.StatusOK,
			checks:   map[string]string{"database": "ok", "scanner": "scanning"},
		},
		{
			name:     "database down",
			database: pingerFunc(func(context.Context) error { return assert.AnError }),
			engine:   &fakeEngine{},
			status:   http.StatusServiceUnavailable,
			checks:   map[string]string{"database": "failed", "scanner": "idle"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.database, tt.engine, VersionInfo{}, testLogger())

			w := httptest.NewRecorder()
			h.Health(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", http.NoBody))

			require.Equal(t, tt.status, w.Code)
			var resp HealthResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.checks, resp.Checks)
			assert.NotContains(t, w.Body.String(), assert.AnError.Error())
		})
	}
}

func TestLivenessAndVersion(t *testing.T) {
	h := NewHealthHandler(nil, nil, VersionInfo{Version: "1.2.3", Commit: "abc123", BuildTime: "2026-10-01"}, testLogger())

	w := httptest.NewRecorder()
	h.Liveness(w, httptest.NewRequest(http.MethodGet, "/api/v1/liveness", http.NoBody))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"alive"`)

	w = httptest.NewRecorder()
	h.Version(w, httptest.NewRequest(http.MethodGet, "/api/v1/version", http.NoBody))
	require.Equal(t, http.StatusOK, w.Code)

	var resp VersionResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "abc123", resp.Commit)
	assert.Equal(t, runtime.Version(), resp.GoVersion)
}
