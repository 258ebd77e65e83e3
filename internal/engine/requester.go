package engine

import (
	"context"

	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// Request is one backend query issued while evaluating an expression.
type Request struct {
	// ID identifies the request in logs and traces (UUIDv7 by default).
	ID string
	// Seq orders the requests of one evaluation.
	Seq   int64
	Query external.Query
}

// Requester sends a query to its backend and returns the result as flat
// rows. SQL requesters return one Datum per result row; Druid requesters
// return one Datum per result entry (see external.Query).
type Requester interface {
	Request(ctx context.Context, req Request) ([]ir.Datum, error)
}

// RequesterFunc adapts a function to Requester.
type RequesterFunc func(ctx context.Context, req Request) ([]ir.Datum, error)

// Request calls f.
func (f RequesterFunc) Request(ctx context.Context, req Request) ([]ir.Datum, error) {
	return f(ctx, req)
}

// Route dispatches each request to the requester registered for the
// query's engine.
func Route(byEngine map[string]Requester) Requester {
	return RequesterFunc(func(ctx context.Context, req Request) ([]ir.Datum, error) {
		r, ok := byEngine[req.Query.Engine]
		if !ok {
			return nil, NewNoRequesterError(req)
		}
		return r.Request(ctx, req)
	})
}
