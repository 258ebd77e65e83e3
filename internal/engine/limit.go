package engine

import (
	"context"
	"sync"

	"github.com/roach88/strata/internal/ir"
)

// ConcurrentLimit wraps r so that at most n requests are in flight at
// once. Excess requests wait in FIFO order and are released one by one as
// slots free up. A request whose context ends while waiting leaves the
// queue without being sent. n < 1 is treated as 1.
func ConcurrentLimit(r Requester, n int) Requester {
	if n < 1 {
		n = 1
	}
	l := &limiter{max: n}
	return RequesterFunc(func(ctx context.Context, req Request) ([]ir.Datum, error) {
		if err := l.acquire(ctx); err != nil {
			return nil, err
		}
		defer l.release()
		return r.Request(ctx, req)
	})
}

// limiter is a counting semaphore with a FIFO wait queue.
//
// A released slot is handed directly to the oldest waiter, so a newcomer
// never overtakes a request that is already queued.
type limiter struct {
	mu       sync.Mutex
	max      int
	inFlight int
	waiters  []chan struct{}
}

func (l *limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.inFlight < l.max && len(l.waiters) == 0 {
		l.inFlight++
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	l.waiters = append(l.waiters, ready)
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		for i, w := range l.waiters {
			if w == ready {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				return ctx.Err()
			}
		}
		// The slot was handed over while we were cancelling; pass it on.
		l.releaseLocked()
		return ctx.Err()
	}
}

func (l *limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releaseLocked()
}

func (l *limiter) releaseLocked() {
	if len(l.waiters) > 0 {
		next := l.waiters[0]
		l.waiters = l.waiters[1:]
		close(next) // slot stays counted, now owned by next
		return
	}
	l.inFlight--
}

// pending returns the number of queued requests.
func (l *limiter) pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.waiters)
}
