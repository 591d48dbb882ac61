package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgegate/edgegate/internal/util"
)

func TestOuterBreakerPassthrough(t *testing.T) {
	o := NewOuterBreaker(10, time.Minute, nil)

	err := o.Execute(func() error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, "closed", o.State())
}

func TestOuterBreakerPropagatesErrors(t *testing.T) {
	o := NewOuterBreaker(100, time.Minute, nil)

	backendErr := errors.New("boom")
	err := o.Execute(func() error { return backendErr })
	assert.ErrorIs(t, err, backendErr)
}

func TestOuterBreakerTripsOnFailureRate(t *testing.T) {
	o := NewOuterBreaker(5, time.Minute, nil)

	for i := 0; i < 10; i++ {
		_ = o.Execute(func() error { return errors.New("boom") })
	}

	err := o.Execute(func() error { return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrCircuitOpen)
	assert.Equal(t, "open", o.State())
}

func TestOuterBreakerBelowMinRequests(t *testing.T) {
	o := NewOuterBreaker(100, time.Minute, nil)

	for i := 0; i < 10; i++ {
		_ = o.Execute(func() error { return errors.New("boom") })
	}

	assert.Equal(t, "closed", o.State(), "too few requests to trip")
}
