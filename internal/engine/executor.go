package engine

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/external"
	"github.com/roach88/strata/internal/ir"
)

// Cache stores post-processing input (the backend's flat rows) by query
// fingerprint. Implemented by the cache package.
type Cache interface {
	Get(ctx context.Context, key string) ([]ir.Datum, bool, error)
	Put(ctx context.Context, key string, rows []ir.Datum) error
}

// Executor evaluates expressions whose sources are Externals, sending the
// compiled queries through a Requester.
//
// Thread-safety: an Executor may be shared. Each Evaluate call keeps its
// own sequence clock and query quota.
type Executor struct {
	requester   Requester
	cache       Cache
	ids         IDGenerator
	retry       *RetryOptions
	concurrency int
	maxQueries  int
	logger      *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithRetry retries failed requests per opts.
func WithRetry(opts RetryOptions) Option {
	return func(x *Executor) {
		x.retry = &opts
	}
}

// WithConcurrency bounds the number of requests in flight.
func WithConcurrency(n int) Option {
	return func(x *Executor) {
		x.concurrency = n
	}
}

// WithCache answers repeated queries from c.
func WithCache(c Cache) Option {
	return func(x *Executor) {
		x.cache = c
	}
}

// WithIDGenerator sets the request ID generator. Tests use FixedGenerator.
func WithIDGenerator(g IDGenerator) Option {
	return func(x *Executor) {
		x.ids = g
	}
}

// WithMaxQueries bounds the queries one evaluation may issue.
// Zero or less disables the bound.
func WithMaxQueries(n int) Option {
	return func(x *Executor) {
		x.maxQueries = n
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(x *Executor) {
		x.logger = l
	}
}

// NewExecutor creates an Executor sending queries through r.
//
// When both are configured Retry wraps ConcurrentLimit, so a request
// waiting out its retry delay does not hold a slot.
func NewExecutor(r Requester, opts ...Option) *Executor {
	x := &Executor{
		requester:  r,
		ids:        UUIDv7Generator{},
		maxQueries: DefaultMaxQueries,
	}
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = slog.Default()
	}
	if x.concurrency > 0 {
		x.requester = ConcurrentLimit(x.requester, x.concurrency)
	}
	if x.retry != nil {
		opts := *x.retry
		if opts.Logger == nil {
			opts.Logger = x.logger
		}
		x.requester = Retry(x.requester, opts)
	}
	return x
}

// Prepare resolves e against the named sources, binds each source's
// External in place of its reference and simplifies the result, so that
// the Externals absorb every action they can express.
//
// References not naming a source must resolve within e itself.
func Prepare(e expr.Expression, sources map[string]*external.External) (expr.Expression, error) {
	var root ir.Attributes
	bind := make(map[string]expr.Expression, len(sources))
	for _, name := range slices.Sorted(maps.Keys(sources)) {
		src := sources[name]
		root = append(root, ir.Attribute{Name: name, Type: ir.TypeDataset, Nested: src.Attributes()})
		bind[name] = &expr.ExternalExpr{Source: src}
	}

	resolved, err := expr.Resolve(e, expr.NewScope(root))
	if err != nil {
		return nil, fmt.Errorf("resolve: %w", err)
	}
	bound, err := expr.ResolveValues(resolved, expr.NewEnv(bind))
	if err != nil {
		return nil, fmt.Errorf("bind sources: %w", err)
	}
	return expr.Simplify(bound), nil
}

// Compute prepares e against sources and evaluates it.
func (x *Executor) Compute(ctx context.Context, e expr.Expression, sources map[string]*external.External) (ir.Value, error) {
	prepared, err := Prepare(e, sources)
	if err != nil {
		return nil, err
	}
	return x.Evaluate(ctx, prepared)
}

// Evaluate computes a prepared expression.
//
// The Externals of the prepared plan are materialised first, all at once;
// their results are kept in plan order whatever order the backend answers
// in. Externals that only exist once a row is bound (nested applies over
// split groups) are materialised as evaluation reaches them.
func (x *Executor) Evaluate(ctx context.Context, e expr.Expression) (ir.Value, error) {
	run := &evaluation{x: x, clock: NewClock(), quota: NewQueryQuota(x.maxQueries)}

	plan := plannedExternals(e)
	results := make([]ir.Value, len(plan))
	errs := make([]error, len(plan))
	var wg sync.WaitGroup
	for i, src := range plan {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = run.materialize(ctx, src)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	run.prefetched = plan
	run.results = results

	return expr.Compute(ctx, e, nil, run)
}

// Introspect discovers the schema of ext's source and returns ext with
// those attributes.
func (x *Executor) Introspect(ctx context.Context, ext *external.External) (*external.External, error) {
	q, pp, err := ext.IntrospectQueryAndPostProcess()
	if err != nil {
		return nil, err
	}
	run := &evaluation{x: x, clock: NewClock(), quota: NewQueryQuota(x.maxQueries)}
	rows, err := run.send(ctx, q)
	if err != nil {
		return nil, err
	}
	attrs, err := pp(rows)
	if err != nil {
		return nil, err
	}
	return ext.WithAttributes(attrs)
}

// plannedExternals lists the distinct Externals of e in depth-first order.
// Their state never refers to a row, so each is sent at most once.
func plannedExternals(e expr.Expression) []*external.External {
	var out []*external.External
	for _, x := range expr.Externals(e) {
		ext, ok := x.Source.(*external.External)
		if !ok || slices.ContainsFunc(out, func(seen *external.External) bool { return seen.Equals(ext) }) {
			continue
		}
		out = append(out, ext)
	}
	return out
}

// evaluation is the state of one Evaluate call. It implements
// expr.Materializer.
type evaluation struct {
	x     *Executor
	clock *Clock
	quota *QueryQuota

	prefetched []*external.External
	results    []ir.Value
}

func (run *evaluation) Materialize(ctx context.Context, src expr.Source) (ir.Value, error) {
	ext, ok := src.(*external.External)
	if !ok {
		return nil, ir.NewUnsupportedError(src.String(), "unknown source type %T", src)
	}
	for i, p := range run.prefetched {
		if p.Equals(ext) {
			return run.results[i], nil
		}
	}
	return run.materialize(ctx, ext)
}

func (run *evaluation) materialize(ctx context.Context, ext *external.External) (ir.Value, error) {
	q, pp, err := ext.QueryAndPostProcess()
	if err != nil {
		return nil, err
	}
	rows, err := run.send(ctx, q)
	if err != nil {
		return nil, err
	}
	return pp(rows)
}

// send issues q, answering from the cache when it holds the query.
func (run *evaluation) send(ctx context.Context, q external.Query) ([]ir.Datum, error) {
	x := run.x
	key, err := q.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("fingerprint query: %w", err)
	}
	if x.cache != nil {
		rows, ok, err := x.cache.Get(ctx, key)
		if err != nil {
			x.logger.Warn("cache read failed", "fingerprint", key, "error", err)
		} else if ok {
			x.logger.Debug("cache hit", "fingerprint", key, "engine", q.Engine)
			return rows, nil
		}
	}

	if err := run.quota.Check(); err != nil {
		return nil, err
	}
	req := Request{ID: x.ids.Generate(), Seq: run.clock.Next(), Query: q}
	x.logger.Debug("sending query",
		"id", req.ID,
		"seq", req.Seq,
		"engine", q.Engine,
		"fingerprint", key,
	)
	rows, err := x.requester.Request(ctx, req)
	if err != nil {
		return nil, err
	}
	x.logger.Debug("query answered", "id", req.ID, "rows", len(rows))

	if x.cache != nil {
		if err := x.cache.Put(ctx, key, rows); err != nil {
			x.logger.Warn("cache write failed", "fingerprint", key, "error", err)
		}
	}
	return rows, nil
}
