package expr

import (
	"slices"

	"github.com/roach88/strata/internal/ir"
)

// Scope is one frame of the type context: the attributes in scope at a
// nesting level plus a link to the enclosing frame. Frames are persistent;
// Push returns a new frame and never modifies the receiver.
type Scope struct {
	parent *Scope
	attrs  ir.Attributes
	depth  int
}

// NewScope returns a root frame holding attrs.
func NewScope(attrs ir.Attributes) *Scope {
	return &Scope{attrs: attrs}
}

// Push returns a child frame for the rows of a dataset with attrs.
func (s *Scope) Push(attrs ir.Attributes) *Scope {
	return &Scope{parent: s, attrs: attrs, depth: s.depth + 1}
}

// Depth returns the number of frames above the root.
func (s *Scope) Depth() int {
	return s.depth
}

// Lookup walks exactly nest parent links and finds name in that frame.
// Enclosing frames are never searched: a name defined further out needs a
// deeper nest.
func (s *Scope) Lookup(name string, nest int) (ir.Attribute, error) {
	ref := (&Ref{Name: name, Nest: nest}).String()
	frame := s
	for i := 0; i < nest; i++ {
		if frame.parent == nil {
			return ir.Attribute{}, ir.NewScopeOverflowError(ref, nest, s.depth)
		}
		frame = frame.parent
	}
	attr, ok := frame.attrs.Find(name)
	if !ok {
		return ir.Attribute{}, ir.NewUnresolvedError(ref, "could not resolve %s: no %q at nest %d", ref, name, nest)
	}
	return attr, nil
}

// Env is one frame of the value context used during evaluation: the current
// row plus named expressions (Externals, literals) bound at this level.
type Env struct {
	parent *Env
	row    ir.Datum
	bind   map[string]Expression
}

// NewEnv returns a root frame with the given bindings.
func NewEnv(bind map[string]Expression) *Env {
	return &Env{bind: bind}
}

// Push returns a child frame for one row.
func (e *Env) Push(row ir.Datum) *Env {
	return &Env{parent: e, row: row}
}

// PushBindings returns a child frame for one row with extra bindings.
func (e *Env) PushBindings(row ir.Datum, bind map[string]Expression) *Env {
	return &Env{parent: e, row: row, bind: bind}
}

// Up walks n parent links; it returns nil past the root.
func (e *Env) Up(n int) *Env {
	frame := e
	for i := 0; i < n && frame != nil; i++ {
		frame = frame.parent
	}
	return frame
}

// Depth returns the number of frames above the root.
func (e *Env) Depth() int {
	d := 0
	for f := e; f != nil && f.parent != nil; f = f.parent {
		d++
	}
	return d
}

// lookup finds name in this frame, as a value or a bound expression.
func (e *Env) lookup(name string) (ir.Value, Expression, bool) {
	if v, ok := e.row[name]; ok {
		return v, nil, true
	}
	if x, ok := e.bind[name]; ok {
		if l, isLit := x.(*Literal); isLit {
			return l.Value, nil, true
		}
		return nil, x, true
	}
	return nil, nil, false
}

// ScopeOf derives the type context matching env: each frame's attributes
// are inferred from its row and bindings.
func ScopeOf(env *Env) *Scope {
	if env == nil {
		return NewScope(nil)
	}
	var frames []*Env
	for f := env; f != nil; f = f.parent {
		frames = append(frames, f)
	}
	var s *Scope
	for i := len(frames) - 1; i >= 0; i-- {
		attrs := frameAttributes(frames[i])
		if s == nil {
			s = NewScope(attrs)
		} else {
			s = s.Push(attrs)
		}
	}
	return s
}

func frameAttributes(f *Env) ir.Attributes {
	attrs := ir.InferAttributes([]ir.Datum{f.row})
	names := make([]string, 0, len(f.bind))
	for name := range f.bind {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		x := f.bind[name]
		attr := ir.Attribute{Name: name, Type: x.Type()}
		switch v := x.(type) {
		case *ExternalExpr:
			attr.Nested = v.Source.Attributes()
		case *Literal:
			if ds, ok := v.Value.(*ir.Dataset); ok {
				attr.Nested = ds.Attributes
			}
		}
		attrs = attrs.With(attr)
	}
	return attrs
}
