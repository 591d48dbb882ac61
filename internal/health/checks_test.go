package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/edgegate/edgegate/internal/circuitbreaker"
	"github.com/edgegate/edgegate/internal/observability"
)

func TestRedisCheck(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	check := RedisCheck(client)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	mr.Close()
	result := check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Message, "redis ping failed")
}

func TestTCPCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	address := strings.TrimPrefix(srv.URL, "http://")

	check := TCPCheck(address, time.Second)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	check = TCPCheck("127.0.0.1:1", time.Second)
	result := check(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Message, "dial")
}

func TestHTTPCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	check := HTTPCheck(srv.URL, nil)
	assert.Equal(t, StatusHealthy, check(context.Background()).Status)
}

func TestHTTPCheckBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	result := HTTPCheck(srv.URL, nil)(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Message, "unexpected status code")
}

func TestHTTPCheckUnreachable(t *testing.T) {
	result := HTTPCheck("http://127.0.0.1:1/jwks", nil)(context.Background())
	assert.Equal(t, StatusUnhealthy, result.Status)
}

func TestBreakerCheck(t *testing.T) {
	registry := circuitbreaker.NewRegistry(nil, observability.NopLogger())
	check := BreakerCheck(registry)

	assert.Equal(t, StatusHealthy, check(context.Background()).Status)

	breaker := registry.GetOrCreateWithConfig("orders", &circuitbreaker.Config{
		MaxFailures:      1,
		Cooldown:         time.Minute,
		HalfOpenMax:      1,
		SuccessThreshold: 1,
	})
	breaker.RecordFailure()

	result := check(context.Background())
	assert.Equal(t, StatusDegraded, result.Status)
	assert.Contains(t, result.Message, "1 circuit breaker(s) open")
}
