package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polyagent/internal/domain"
)

// RetryPolicy bounds retries of transient failures. Attempts counts retries
// after the first call; order submission never goes through a RetryPolicy.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// DefaultRetryPolicy is one retry after two seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 1, Backoff: 2 * time.Second}
}

// Do runs fn, each call under its own timeout, retrying only errors marked
// transient. Validation and other errors are returned immediately.
func (p RetryPolicy) Do(ctx context.Context, op string, timeout time.Duration, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= p.Attempts; attempt++ {
		if attempt > 0 {
			slog.Debug("engine: retrying", "op", op, "attempt", attempt, "err", err)
			if serr := sleepCtx(ctx, p.Backoff); serr != nil {
				return fmt.Errorf("%s: %w", op, serr)
			}
		}
		err = withTimeout(ctx, timeout, fn)
		if err == nil || !domain.IsTransient(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func withTimeout(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

// Sleeper waits between cycles. Tests substitute a fake that does not block.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f.
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// TimerSleeper sleeps on a real timer and returns early on cancellation.
var TimerSleeper Sleeper = SleeperFunc(sleepCtx)

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
