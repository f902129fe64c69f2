package core

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T) (*CircuitBreaker, *time.Time) {
	t.Helper()
	cb, err := NewCircuitBreaker(BreakerConfig{MaxFailures: 3, OpenTimeout: time.Minute, MaxProbes: 1})
	require.NoError(t, err)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }
	return cb, &now
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	}
	assert.Equal(t, BreakerOpen, cb.State())

	called := false
	err := cb.Execute(func() error { called = true; return nil }, nil)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)

	_ = cb.Execute(fail, nil)
	_ = cb.Execute(fail, nil)
	require.NoError(t, cb.Execute(succeed, nil))
	_ = cb.Execute(fail, nil)
	_ = cb.Execute(fail, nil)

	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail, nil)
	}

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(succeed, nil))
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail, nil)
	}

	*now = now.Add(2 * time.Minute)
	assert.ErrorIs(t, cb.Execute(fail, nil), errBoom)
	assert.Equal(t, BreakerOpen, cb.State())
	assert.ErrorIs(t, cb.Execute(succeed, nil), ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenProbeLimit(t *testing.T) {
	cb, now := newTestBreaker(t)
	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail, nil)
	}
	*now = now.Add(2 * time.Minute)

	err := cb.Execute(func() error {
		assert.ErrorIs(t, cb.Execute(succeed, nil), ErrTooManyProbes)
		return nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	cb, _ := newTestBreaker(t)
	notCounted := func(error) bool { return false }

	for i := 0; i < 10; i++ {
		assert.ErrorIs(t, cb.Execute(fail, notCounted), errBoom)
	}
	assert.Equal(t, BreakerClosed, cb.State())
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	cb, _ := newTestBreaker(t)
	var transitions []string
	cb.OnStateChange(func(from, to BreakerState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})

	for i := 0; i < 3; i++ {
		_ = cb.Execute(fail, nil)
	}
	cb.Reset()

	assert.Equal(t, []string{"closed->open", "open->closed"}, transitions)
}

func TestNewCircuitBreaker_InvalidConfig(t *testing.T) {
	_, err := NewCircuitBreaker(BreakerConfig{})
	assert.Error(t, err)

	_, err = NewCircuitBreaker(DefaultBreakerConfig())
	assert.NoError(t, err)
}
