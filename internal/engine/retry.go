package engine

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/roach88/strata/internal/ir"
)

// RetryOptions configures Retry.
type RetryOptions struct {
	// Retries is the number of extra attempts after the first failure.
	Retries int

	// Delay is the fixed wait between attempts.
	Delay time.Duration

	// RetryOnTimeout also retries failures that report a timeout.
	RetryOnTimeout bool

	// Logger receives a debug record per retried attempt. Nil uses
	// slog.Default(); an Executor passes its own logger.
	Logger *slog.Logger
}

// DefaultRetryOptions matches a conservative production setting.
var DefaultRetryOptions = RetryOptions{Retries: 2, Delay: 500 * time.Millisecond}

// Retry wraps r so that failed requests are sent again, up to
// opts.Retries more times with opts.Delay between attempts.
//
// Compilation and post-processing failures (*ir.Error) and context errors
// from the caller are never retried. Timeout failures are retried only when
// opts.RetryOnTimeout is set. Once attempts run out the last failure is
// returned inside a RuntimeError with code REQUEST_FAILED.
func Retry(r Requester, opts RetryOptions) Requester {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return RequesterFunc(func(ctx context.Context, req Request) ([]ir.Datum, error) {
		attempts := 0
		for {
			attempts++
			rows, err := r.Request(ctx, req)
			if err == nil {
				return rows, nil
			}
			if !retryable(ctx, err, opts) {
				return nil, err
			}
			if attempts > opts.Retries {
				return nil, NewRequestError(req, attempts, err)
			}

			logger.Debug("retrying request",
				"id", req.ID,
				"engine", req.Query.Engine,
				"attempt", attempts,
				"error", err,
			)
			if err := wait(ctx, opts.Delay); err != nil {
				return nil, NewRequestError(req, attempts, err)
			}
		}
	})
}

func retryable(ctx context.Context, err error, opts RetryOptions) bool {
	var irErr *ir.Error
	if errors.As(err, &irErr) {
		return false
	}
	var rtErr *RuntimeError
	if errors.As(err, &rtErr) && rtErr.Code != ErrCodeRequestFailed {
		return false
	}
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if isTimeout(err) {
		return opts.RetryOnTimeout
	}
	return true
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// wait sleeps for d or until ctx is done.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
