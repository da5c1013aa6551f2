package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/logging"
)

func get(t *testing.T, handler http.Handler, path string) (int, Response) {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp Response
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec.Code, resp
}

func TestReadiness(t *testing.T) {
	checker := NewChecker("test")
	server := NewServer(":0", "fern", checker, logging.Nop())

	code, resp := get(t, server.Handler(), "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, StatusUnhealthy, resp.Status)

	checker.AddProbe("redis", func(context.Context) error { return nil })
	checker.SetReady(true)
	checker.SetLastRun(map[string]any{"aborted": false})

	code, resp = get(t, server.Handler(), "/health/ready")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusHealthy, resp.Checks["redis"].Status)
	assert.NotNil(t, resp.LastRun)

	checker.AddProbe("graph", func(context.Context) error { return errors.New("unreachable") })
	code, resp = get(t, server.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unreachable", resp.Checks["graph"].Message)
}

func TestLivenessAndMetrics(t *testing.T) {
	server := NewServer(":0", "fern", NewChecker("test"), logging.Nop())

	code, resp := get(t, server.Handler(), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "test", resp.Version)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
