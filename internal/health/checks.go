package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/edgegate/edgegate/internal/circuitbreaker"
)

// RedisCheck returns a readiness check that pings the given redis
// client. Used when the rate limiter or response cache runs on redis.
func RedisCheck(client *redis.Client) CheckFunc {
	return func(ctx context.Context) Check {
		if err := client.Ping(ctx).Err(); err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("redis ping failed: %v", err),
			}
		}
		return Check{Status: StatusHealthy}
	}
}

// TCPCheck returns a readiness check that dials the given address.
func TCPCheck(address string, timeout time.Duration) CheckFunc {
	return func(ctx context.Context) Check {
		dialer := net.Dialer{Timeout: timeout}

		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("dial %s failed: %v", address, err),
			}
		}
		_ = conn.Close()

		return Check{Status: StatusHealthy}
	}
}

// HTTPCheck returns a readiness check that expects a 2xx response from
// the given URL. Used to probe the JWKS endpoint the token validator
// depends on.
func HTTPCheck(url string, client *http.Client) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}

	return func(ctx context.Context) Check {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("failed to create request: %v", err),
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("request failed: %v", err),
			}
		}
		defer resp.Body.Close()

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return Check{
				Status:  StatusUnhealthy,
				Message: fmt.Sprintf("unexpected status code: %d", resp.StatusCode),
			}
		}

		return Check{Status: StatusHealthy}
	}
}

// BreakerCheck returns a readiness check reporting degraded while any
// circuit breaker is open. Open breakers do not fail readiness since
// the gateway still serves its other routes.
func BreakerCheck(registry *circuitbreaker.Registry) CheckFunc {
	return func(ctx context.Context) Check {
		open := 0
		for _, breaker := range registry.List() {
			if breaker.State() == circuitbreaker.StateOpen {
				open++
			}
		}

		if open > 0 {
			return Check{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d circuit breaker(s) open", open),
			}
		}

		return Check{Status: StatusHealthy}
	}
}
