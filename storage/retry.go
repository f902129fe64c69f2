package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"petshop/core"
	"petshop/metrics"
)

// RetryPolicy controls how RetryingStore retries transient failures
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Delay is the wait before the first retry.
	Delay time.Duration
	// Multiplier grows the delay after every retry.
	Multiplier float64
}

// BackOff returns the exponential schedule for p, capped at p.Attempts tries. The wait itself is never capped.
func (p RetryPolicy) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Delay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	retries := 0
	if p.Attempts > 1 {
		retries = p.Attempts - 1
	}
	return backoff.WithMaxRetries(b, uint64(retries))
}

// RetryingStore wraps a PetStore with retries and a circuit breaker. Only failures that
// may succeed on a second try are retried; missing documents, conflicts and bad data are not.
type RetryingStore struct {
	next    PetStore
	policy  RetryPolicy
	breaker *core.CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewRetryingStore wraps next. A nil breaker disables circuit breaking.
func NewRetryingStore(next PetStore, policy RetryPolicy, breaker *core.CircuitBreaker, logger *zap.SugaredLogger) *RetryingStore {
	if next == nil {
		panic("next store is required")
	}
	if breaker != nil {
		breaker.OnStateChange(func(from, to core.BreakerState) {
			metrics.CircuitBreakerState.Set(float64(to))
			logger.Warnw("Document store circuit breaker changed state", "from", from.String(), "to", to.String())
		})
	}
	return &RetryingStore{next: next, policy: policy, breaker: breaker, logger: logger}
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrPetNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrDatabaseClosed),
		errors.Is(err, core.ErrCircuitOpen),
		errors.Is(err, core.ErrTooManyProbes),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		core.IsDataValidationError(err):
		return false
	}
	return true
}

func (r *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	attempts := 0
	operation := func() error {
		attempts++
		if attempts > 1 {
			metrics.StoreRetries.WithLabelValues(op).Inc()
		}

		var err error
		if r.breaker != nil {
			err = r.breaker.Execute(fn, IsTransient)
		} else {
			err = fn()
		}
		if err != nil && !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		r.logger.Warnw("Document store call failed, retrying", "operation", op, "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(r.policy.BackOff(), ctx), notify)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrCircuitOpen), errors.Is(err, core.ErrTooManyProbes):
		return core.NewDatabaseConnectionError("document store is unavailable", err)
	case IsTransient(err):
		r.logger.Errorw("Document store call failed", "operation", op, "attempts", attempts, "error", err)
		return core.NewDatabaseConnectionError(fmt.Sprintf("%s failed after %d attempts", op, attempts), err)
	}
	return err
}

func (r *RetryingStore) Create(ctx context.Context, pet *core.Pet) error {
	return r.do(ctx, "create", func() error { return r.next.Create(ctx, pet) })
}

func (r *RetryingStore) Update(ctx context.Context, pet *core.Pet) error {
	return r.do(ctx, "update", func() error { return r.next.Update(ctx, pet) })
}

func (r *RetryingStore) Delete(ctx context.Context, id, rev string) error {
	return r.do(ctx, "delete", func() error { return r.next.Delete(ctx, id, rev) })
}

func (r *RetryingStore) Get(ctx context.Context, id string) (*core.Pet, error) {
	var pet *core.Pet
	err := r.do(ctx, "get", func() error {
		var err error
		pet, err = r.next.Get(ctx, id)
		return err
	})
	return pet, err
}

func (r *RetryingStore) All(ctx context.Context) ([]core.Pet, error) {
	var pets []core.Pet
	err := r.do(ctx, "all", func() error {
		var err error
		pets, err = r.next.All(ctx)
		return err
	})
	return pets, err
}

func (r *RetryingStore) FindBy(ctx context.Context, selector Selector) ([]core.Pet, error) {
	var pets []core.Pet
	err := r.do(ctx, "find", func() error {
		var err error
		pets, err = r.next.FindBy(ctx, selector)
		return err
	})
	return pets, err
}

func (r *RetryingStore) RemoveAll(ctx context.Context) error {
	return r.do(ctx, "remove_all", func() error { return r.next.RemoveAll(ctx) })
}

// Ping is not retried so health checks report the store's current state.
func (r *RetryingStore) Ping(ctx context.Context) error {
	return r.next.Ping(ctx)
}

func (r *RetryingStore) Close(ctx context.Context) error {
	return r.next.Close(ctx)
}
