package engine

import "sync"

// DefaultMaxQueries is the default maximum number of backend queries one
// evaluation may issue. Nested applies over split results issue one query
// per group, so a runaway plan is caught here instead of at the backend.
const DefaultMaxQueries = 1000

// QueryQuota counts the queries issued by one evaluation and enforces a
// maximum.
//
// Thread-safety: QueryQuota is safe for concurrent use.
type QueryQuota struct {
	mu      sync.Mutex
	max     int
	current int
}

// NewQueryQuota creates a quota allowing max queries. A max of zero or
// less disables the limit.
func NewQueryQuota(max int) *QueryQuota {
	return &QueryQuota{max: max}
}

// Check counts one more query and returns a budget error once the limit
// is exceeded.
func (q *QueryQuota) Check() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.current++
	if q.max > 0 && q.current > q.max {
		return NewBudgetError(q.current, q.max)
	}
	return nil
}

// Current returns the number of queries counted so far.
func (q *QueryQuota) Current() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current
}

// Max returns the limit.
func (q *QueryQuota) Max() int {
	return q.max
}
