package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/util"
)

func testConfig() *Config {
	return &Config{
		MaxFailures:      3,
		Cooldown:         50 * time.Millisecond,
		HalfOpenMax:      1,
		SuccessThreshold: 1,
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestBreakerStartsClosed(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.RecordFailure()
	}

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerSuccessResetsFailureStreak(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()

	assert.Equal(t, StateClosed, cb.State(), "streak broken by success")

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())
	require.False(t, cb.Allow())

	time.Sleep(60 * time.Millisecond)

	assert.True(t, cb.Allow(), "probe allowed after cooldown")
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	assert.False(t, cb.Allow(), "only one probe at a time")
}

func TestBreakerClosesAfterProbeSuccess(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordSuccess()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerReopensOnProbeFailure(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordFailure()

	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())
}

func TestBreakerSuccessThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.SuccessThreshold = 2
	cfg.HalfOpenMax = 2
	cb := NewCircuitBreaker("orders", cfg, nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	time.Sleep(60 * time.Millisecond)

	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State(), "one success below the threshold")

	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerExecute(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)
	ctx := context.Background()

	backendErr := errors.New("backend down")

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func() error { return backendErr })
		assert.ErrorIs(t, err, backendErr)
	}

	err := cb.Execute(ctx, func() error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrCircuitOpen)

	var openErr *util.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "orders", openErr.Backend)
}

func TestBreakerExecuteCanceledContext(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.Execute(ctx, func() error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestBreakerCustomIsSuccessful(t *testing.T) {
	tolerated := errors.New("not found")

	cfg := testConfig()
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, tolerated)
	}
	cb := NewCircuitBreaker("orders", cfg, nil)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func() error { return tolerated })
	}

	assert.Equal(t, StateClosed, cb.State(), "tolerated errors do not trip the breaker")
}

func TestBreakerOnStateChange(t *testing.T) {
	var mu sync.Mutex
	var transitions []string

	cfg := testConfig()
	cfg.OnStateChange = func(name string, from, to State) {
		mu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		mu.Unlock()
	}
	cb := NewCircuitBreaker("orders", cfg, nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transitions) == 1 && transitions[0] == "closed->open"
	}, time.Second, 10*time.Millisecond)
}

func TestBreakerReset(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	for i := 0; i < 3; i++ {
		cb.RecordFailure()
	}
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()

	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.Allow())
}

func TestBreakerStats(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)

	cb.RecordFailure()
	cb.RecordFailure()

	stats := cb.Stats()
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, 2, stats.ConsecutiveFails)
	assert.False(t, stats.LastFailure.IsZero())
}

func TestBreakerConcurrentAccess(t *testing.T) {
	cb := NewCircuitBreaker("orders", testConfig(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = cb.Execute(ctx, func() error {
					if j%2 == 0 {
						return errors.New("flaky")
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()
}
