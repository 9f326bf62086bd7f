package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Policy bounds a retry loop. MaxAttempts <= 0 retries until the context is
// cancelled.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy returns the policy used when none is configured.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// ExhaustedError is returned when every allowed attempt failed.
type ExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: giving up after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Permanent marks err as not worth retrying. Do returns it unwrapped.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy().BaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay < base {
		maxDelay = base
	}
	var b backoff.BackOff = backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(base),
		backoff.WithMaxInterval(maxDelay),
		backoff.WithMaxElapsedTime(0),
	)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return backoff.WithContext(b, ctx)
}

// Do calls fn until it succeeds, returns a Permanent error, the policy runs
// out of attempts, or ctx is done. Each failed attempt is logged.
func Do(ctx context.Context, p Policy, log *zap.Logger, op string, fn func(ctx context.Context) error) error {
	if log == nil {
		log = zap.NewNop()
	}
	attempt := 0
	permanent := false
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn(ctx)
		if err != nil && IsPermanent(err) {
			permanent = true
		}
		return err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.Warn(op+" failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
	})
	switch {
	case err == nil:
		return nil
	case permanent:
		log.Error(op+" failed permanently", zap.Int("attempt", attempt), zap.Error(err))
		return err
	case ctx.Err() != nil:
		return err
	default:
		return &ExhaustedError{Op: op, Attempts: attempt, Err: err}
	}
}
