package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// timeoutError is a net.Error reporting a timeout.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// failing fails the first n calls with err and then answers one row.
func failing(n int32, err error) (Requester, *atomic.Int32) {
	calls := &atomic.Int32{}
	return RequesterFunc(func(context.Context, Request) ([]ir.Datum, error) {
		if calls.Add(1) <= n {
			return nil, err
		}
		return []ir.Datum{{"ok": ir.Bool(true)}}, nil
	}), calls
}

func TestRetry(t *testing.T) {
	transport := errors.New("connection refused")
	tests := []struct {
		name      string
		failures  int32
		err       error
		opts      RetryOptions
		wantCalls int32
		wantErr   func(error) bool
	}{
		{"succeeds first time", 0, transport, RetryOptions{Retries: 2}, 1, nil},
		{"recovers", 2, transport, RetryOptions{Retries: 2}, 3, nil},
		{"exhausted", 5, transport, RetryOptions{Retries: 2}, 3, IsRequestError},
		{"no retries", 1, transport, RetryOptions{}, 1, IsRequestError},
		{"compile error not retried", 1, ir.NewMalformedError("diamonds", "bad row"), RetryOptions{Retries: 2}, 1, ir.IsMalformedError},
		{"timeout not retried by default", 1, timeoutError{}, RetryOptions{Retries: 2}, 1, func(err error) bool { return !IsRequestError(err) }},
		{"timeout retried when enabled", 1, timeoutError{}, RetryOptions{Retries: 2, RetryOnTimeout: true}, 2, nil},
		{"deadline counts as timeout", 1, context.DeadlineExceeded, RetryOptions{Retries: 2, RetryOnTimeout: true}, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inner, calls := failing(tt.failures, tt.err)
			rows, err := Retry(inner, tt.opts).Request(context.Background(), Request{ID: "q-1"})

			assert.Equal(t, tt.wantCalls, calls.Load())
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Len(t, rows, 1)
				return
			}
			require.Error(t, err)
			assert.True(t, tt.wantErr(err), "unexpected error %v", err)
		})
	}
}

func TestRetry_ExhaustedErrorCarriesCause(t *testing.T) {
	cause := errors.New("connection refused")
	inner, _ := failing(10, cause)
	req := Request{ID: "q-7", Query: external.Query{Engine: "sqlite"}}

	_, err := Retry(inner, RetryOptions{Retries: 1}).Request(context.Background(), req)
	require.Error(t, err)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeRequestFailed, re.Code)
	assert.Equal(t, 2, re.Attempts)
	assert.Equal(t, "q-7", re.RequestID)
	assert.Equal(t, "sqlite", re.Engine)
	assert.ErrorIs(t, err, cause)
}

func TestRetry_WaitsDelay(t *testing.T) {
	inner, calls := failing(1, errors.New("connection refused"))

	start := time.Now()
	_, err := Retry(inner, RetryOptions{Retries: 1, Delay: 30 * time.Millisecond}).Request(context.Background(), Request{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRetry_CancelledDuringDelay(t *testing.T) {
	inner, calls := failing(10, errors.New("connection refused"))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(inner, RetryOptions{Retries: 5, Delay: time.Minute}).Request(ctx, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetry_LogsThroughExecutorLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	inner, calls := failing(1, errors.New("connection refused"))

	x := NewExecutor(inner, WithRetry(RetryOptions{Retries: 1}), WithLogger(logger))
	_, err := x.requester.Request(context.Background(), Request{ID: "q-9"})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, buf.String(), "retrying request")
	assert.Contains(t, buf.String(), "id=q-9")

	buf.Reset()
	own := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	inner, _ = failing(1, errors.New("connection refused"))
	x = NewExecutor(inner, WithRetry(RetryOptions{Retries: 1, Logger: own}), WithLogger(logger))
	_, err = x.requester.Request(context.Background(), Request{ID: "q-10"})
	require.NoError(t, err)
	assert.Empty(t, buf.String(), "an explicit retry logger wins")
}
