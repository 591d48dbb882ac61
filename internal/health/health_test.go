package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	checker := NewChecker("1.2.3")

	rec := httptest.NewRecorder()
	checker.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.NotEmpty(t, resp.Uptime)
}

func TestLivenessHandler(t *testing.T) {
	checker := NewChecker("dev")

	rec := httptest.NewRecorder()
	checker.LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadinessAllHealthy(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("cache", func(ctx context.Context) Check {
		return Check{Status: StatusHealthy}
	})

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Contains(t, resp.Checks, "cache")
}

func TestReadinessUnhealthyCheck(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("redis", func(ctx context.Context) Check {
		return Check{Status: StatusUnhealthy, Message: "connection refused"}
	})

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["redis"].Message)
}

func TestReadinessDegradedCheck(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("breakers", func(ctx context.Context) Check {
		return Check{Status: StatusDegraded, Message: "1 circuit breaker(s) open"}
	})

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code, "degraded still serves traffic")

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadinessUnhealthyWinsOverDegraded(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("breakers", func(ctx context.Context) Check {
		return Check{Status: StatusDegraded}
	})
	checker.RegisterCheck("redis", func(ctx context.Context) Check {
		return Check{Status: StatusUnhealthy}
	})

	resp := checker.Readiness(context.Background())
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestReadinessDraining(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("cache", func(ctx context.Context) Check {
		t.Fatal("checks must not run while draining")
		return Check{}
	})

	checker.SetDraining(true)

	rec := httptest.NewRecorder()
	checker.ReadinessHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
	assert.Contains(t, resp.Checks, "draining")
}

func TestUnregisterCheck(t *testing.T) {
	checker := NewChecker("dev")
	checker.RegisterCheck("redis", func(ctx context.Context) Check {
		return Check{Status: StatusUnhealthy}
	})
	checker.UnregisterCheck("redis")

	resp := checker.Readiness(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Empty(t, resp.Checks)
}
