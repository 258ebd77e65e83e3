package expr

import (
	"context"
	"strings"
	"sync"

	"github.com/roach88/strata/internal/ir"
)

// fakeSource is a Source that absorbs the operations listed in accept and
// records them in its textual form.
type fakeSource struct {
	name   string
	t      ir.Type
	steps  []string
	accept map[Op]bool
	bind   func(row ir.Datum) map[string]Expression
}

func newFake(name string, accept ...Op) *fakeSource {
	f := &fakeSource{name: name, t: ir.TypeDataset, accept: map[Op]bool{}}
	for _, o := range accept {
		f.accept[o] = true
	}
	return f
}

func (f *fakeSource) Type() ir.Type { return f.t }

func (f *fakeSource) String() string {
	return f.name + "[" + strings.Join(f.steps, ";") + "]"
}

func (f *fakeSource) Equals(o Source) bool {
	return o != nil && f.String() == o.String()
}

func (f *fakeSource) Attributes() ir.Attributes {
	return ir.Attributes{
		{Name: "cut", Type: ir.TypeString},
		{Name: "color", Type: ir.TypeString},
		{Name: "price", Type: ir.TypeNumber},
	}
}

func (f *fakeSource) with(step string, t ir.Type) *fakeSource {
	next := *f
	next.steps = append(append([]string{}, f.steps...), step)
	next.t = t
	return &next
}

func (f *fakeSource) Absorb(a Action) (Source, bool) {
	if !f.accept[a.Op] {
		return nil, false
	}
	t := f.t
	if a.Op.IsAggregate() {
		t = ir.TypeNumber
	}
	return f.with(a.String(), t), true
}

func (f *fakeSource) AsTotal(name string) (Source, bool) {
	if f.t == ir.TypeDataset {
		return nil, false
	}
	return f.with("total:"+name, ir.TypeDataset), true
}

func (f *fakeSource) RowBindings(row ir.Datum) map[string]Expression {
	if f.bind == nil {
		return nil
	}
	return f.bind(row)
}

// recorder materialises sources from a fixed table and records the order
// of requests.
type recorder struct {
	mu      sync.Mutex
	results map[string]ir.Value
	seen    []string
}

func (r *recorder) Materialize(_ context.Context, src Source) (ir.Value, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, src.String())
	v, ok := r.results[src.String()]
	if !ok {
		return nil, ir.NewMalformedError(src.String(), "no canned result")
	}
	return v, nil
}
