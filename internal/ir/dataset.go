package ir

import (
	"fmt"
	"slices"
	"strings"
)

// Datum is one row: a mapping from column name to value.
type Datum map[string]Value

// Get returns the named column, or Null when absent.
func (d Datum) Get(name string) Value {
	v, ok := d[name]
	if !ok || v == nil {
		return Null{}
	}
	return v
}

// Clone returns a shallow copy of the row. Values are immutable, so a
// shallow copy is safe to extend.
func (d Datum) Clone() Datum {
	out := make(Datum, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Equal reports whether two rows hold equal values under the same names.
// An absent column and an explicit Null are the same.
func (d Datum) Equal(o Datum) bool {
	for k, v := range d {
		if !Equal(v, o.Get(k)) {
			return false
		}
	}
	for k, v := range o {
		if _, ok := d[k]; !ok && !IsNull(v) {
			return false
		}
	}
	return true
}

// Attribute describes one column of a relation.
type Attribute struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// NativeType is the backend's own column type when it matters for
	// query generation (e.g. Druid "hyperUnique").
	NativeType string `json:"nativeType,omitempty" yaml:"nativeType,omitempty"`

	// Unsplitable marks metric columns that cannot be grouped on.
	Unsplitable bool `json:"unsplitable,omitempty" yaml:"unsplitable,omitempty"`

	// Nullable marks columns that may hold NULL.
	Nullable bool `json:"nullable,omitempty" yaml:"nullable,omitempty"`

	// Multi marks multi-valued columns (one row, several values).
	Multi bool `json:"multi,omitempty" yaml:"multi,omitempty"`

	// Nested holds the attributes of a DATASET-typed column.
	Nested Attributes `json:"nested,omitempty" yaml:"nested,omitempty"`
}

// Attributes is an ordered list of column descriptions.
type Attributes []Attribute

// Find returns the attribute with the given name.
func (a Attributes) Find(name string) (Attribute, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// With returns a copy of a in which attr replaces the attribute of the same
// name, or is appended.
func (a Attributes) With(attr Attribute) Attributes {
	out := slices.Clone(a)
	for i := range out {
		if out[i].Name == attr.Name {
			out[i] = attr
			return out
		}
	}
	return append(out, attr)
}

// Direction is a sort direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// ParseDirection validates a sort direction; the empty string is ascending.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Ascending, "":
		return Ascending, nil
	case Descending:
		return Descending, nil
	}
	return "", fmt.Errorf("invalid sort direction %q: must be ascending or descending", s)
}

// RowFunc computes a value from one row.
type RowFunc func(Datum) (Value, error)

// PredicateFunc decides whether a row is kept.
type PredicateFunc func(Datum) (bool, error)

// SplitKey is one grouping dimension of a Split.
type SplitKey struct {
	Name string
	Type Type
	Fn   RowFunc
}

// Dataset is an ordered sequence of rows, possibly nested: a row produced
// by Split holds the group's member rows as a *Dataset.
//
// Datasets are immutable: every operation returns a new Dataset.
type Dataset struct {
	// Keys lists the split output names when the dataset came from Split.
	// Join matches rows on these columns.
	Keys []string

	Attributes Attributes
	Data       []Datum
}

// NewDataset builds a dataset, inferring attributes from the first non-null
// value of each column.
func NewDataset(data []Datum) *Dataset {
	return &Dataset{Attributes: InferAttributes(data), Data: data}
}

// Basis returns the single empty row that totals are applied to.
func Basis() *Dataset {
	return &Dataset{Data: []Datum{{}}}
}

// InferAttributes derives column attributes from row data, in order of first
// appearance with names sorted within each row.
func InferAttributes(data []Datum) Attributes {
	var attrs Attributes
	index := map[string]int{}
	for _, row := range data {
		names := make([]string, 0, len(row))
		for k := range row {
			names = append(names, k)
		}
		slices.Sort(names)
		for _, name := range names {
			v := row[name]
			i, seen := index[name]
			if !seen {
				i = len(attrs)
				index[name] = i
				attrs = append(attrs, Attribute{Name: name, Type: TypeOf(v)})
			} else if attrs[i].Type == TypeNull && !IsNull(v) {
				attrs[i].Type = v.Type()
			}
			if ds, ok := v.(*Dataset); ok && attrs[i].Nested == nil {
				attrs[i].Nested = ds.Attributes
			}
		}
	}
	return attrs
}

func (*Dataset) value()     {}
func (*Dataset) Type() Type { return TypeDataset }

func (d *Dataset) String() string {
	return fmt.Sprintf("Dataset(%d rows)", d.Len())
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// Equal reports whether both datasets hold equal rows in the same order.
func (d *Dataset) Equal(o *Dataset) bool {
	if d.Len() != o.Len() {
		return false
	}
	for i := range d.Data {
		if !d.Data[i].Equal(o.Data[i]) {
			return false
		}
	}
	return true
}

// ToNative converts the dataset into JSON-friendly rows.
func (d *Dataset) ToNative() []map[string]any {
	out := make([]map[string]any, d.Len())
	for i, row := range d.Data {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = ToNative(v)
		}
		out[i] = m
	}
	return out
}

// Columns returns the attribute names in order.
func (d *Dataset) Columns() []string {
	names := make([]string, len(d.Attributes))
	for i, a := range d.Attributes {
		names[i] = a.Name
	}
	return names
}

func (d *Dataset) derive(data []Datum) *Dataset {
	return &Dataset{Keys: d.Keys, Attributes: d.Attributes, Data: data}
}

// Filter keeps the rows for which pred is true, preserving order.
func (d *Dataset) Filter(pred PredicateFunc) (*Dataset, error) {
	out := make([]Datum, 0, d.Len())
	for _, row := range d.Data {
		ok, err := pred(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return d.derive(out), nil
}

// Apply adds (or overwrites) column name on every row.
func (d *Dataset) Apply(name string, t Type, fn RowFunc) (*Dataset, error) {
	out := make([]Datum, d.Len())
	for i, row := range d.Data {
		v, err := fn(row)
		if err != nil {
			return nil, fmt.Errorf("apply %s: %w", name, err)
		}
		next := row.Clone()
		next[name] = v
		out[i] = next
	}
	res := d.derive(out)
	res.Attributes = d.Attributes.With(Attribute{Name: name, Type: t})
	return res, nil
}

// Sort orders rows by the value of fn. The sort is stable; NULL sorts first
// in ascending order and last in descending order.
func (d *Dataset) Sort(fn RowFunc, dir Direction) (*Dataset, error) {
	type keyed struct {
		key Value
		row Datum
	}
	rows := make([]keyed, d.Len())
	for i, row := range d.Data {
		k, err := fn(row)
		if err != nil {
			return nil, err
		}
		rows[i] = keyed{key: k, row: row}
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		if dir == Descending {
			return Compare(b.key, a.key)
		}
		return Compare(a.key, b.key)
	})
	out := make([]Datum, len(rows))
	for i, r := range rows {
		out[i] = r.row
	}
	return d.derive(out), nil
}

// Limit keeps the first n rows.
func (d *Dataset) Limit(n int) *Dataset {
	if n < 0 || n >= d.Len() {
		return d
	}
	return d.derive(slices.Clone(d.Data[:n]))
}

// Select keeps only the named columns.
func (d *Dataset) Select(names []string) *Dataset {
	out := make([]Datum, d.Len())
	for i, row := range d.Data {
		next := make(Datum, len(names))
		for _, n := range names {
			if v, ok := row[n]; ok {
				next[n] = v
			}
		}
		out[i] = next
	}
	var attrs Attributes
	for _, n := range names {
		if a, ok := d.Attributes.Find(n); ok {
			attrs = append(attrs, a)
		}
	}
	var keys []string
	for _, k := range d.Keys {
		if slices.Contains(names, k) {
			keys = append(keys, k)
		}
	}
	return &Dataset{Keys: keys, Attributes: attrs, Data: out}
}

// Split groups rows by the combined key values. The result has one row per
// distinct key, in first-occurrence order, holding the key values and the
// group's member rows under dataName.
func (d *Dataset) Split(keys []SplitKey, dataName string) (*Dataset, error) {
	type group struct {
		values []Value
		rows   []Datum
	}
	var order []string
	groups := map[string]*group{}
	for _, row := range d.Data {
		values := make([]Value, len(keys))
		parts := make([]string, len(keys))
		for i, k := range keys {
			v, err := k.Fn(row)
			if err != nil {
				return nil, fmt.Errorf("split %s: %w", k.Name, err)
			}
			values[i] = v
			parts[i] = KeyOf(v)
		}
		gk := strings.Join(parts, "\x00")
		g, ok := groups[gk]
		if !ok {
			g = &group{values: values}
			groups[gk] = g
			order = append(order, gk)
		}
		g.rows = append(g.rows, row)
	}

	out := make([]Datum, len(order))
	for i, gk := range order {
		g := groups[gk]
		row := make(Datum, len(keys)+1)
		for j, k := range keys {
			row[k.Name] = g.values[j]
		}
		if dataName != "" {
			row[dataName] = &Dataset{Attributes: d.Attributes, Data: g.rows}
		}
		out[i] = row
	}

	names := make([]string, len(keys))
	var attrs Attributes
	for i, k := range keys {
		names[i] = k.Name
		attrs = append(attrs, Attribute{Name: k.Name, Type: k.Type})
	}
	if dataName != "" {
		attrs = append(attrs, Attribute{Name: dataName, Type: TypeDataset, Nested: d.Attributes})
	}
	return &Dataset{Keys: names, Attributes: attrs, Data: out}, nil
}

// Group returns the distinct values of fn over all rows, in first-occurrence
// order. It is a Split that keeps only the labels.
func (d *Dataset) Group(fn RowFunc) (Set, error) {
	var vals []Value
	var t Type
	for _, row := range d.Data {
		v, err := fn(row)
		if err != nil {
			return Set{}, err
		}
		if v.Type().IsSet() {
			s := v.(Set)
			vals = append(vals, s.Elements...)
			t = s.ElemType
			continue
		}
		vals = append(vals, v)
	}
	return NewSet(t, vals...), nil
}

func (d *Dataset) keyOf(row Datum) string {
	parts := make([]string, len(d.Keys))
	for i, k := range d.Keys {
		parts[i] = KeyOf(row.Get(k))
	}
	return strings.Join(parts, "\x00")
}

// Join merges two split results on their declared keys. Rows with matching
// keys are merged (right-hand columns win on conflict); unmatched rows from
// either side pass through, left rows first in left order followed by the
// remaining right rows in right order.
func (d *Dataset) Join(o *Dataset) *Dataset {
	if o == nil {
		return d
	}
	right := map[string]int{}
	for i, row := range o.Data {
		k := o.keyOf(row)
		if _, ok := right[k]; !ok {
			right[k] = i
		}
	}
	used := make([]bool, o.Len())
	out := make([]Datum, 0, d.Len()+o.Len())
	for _, row := range d.Data {
		next := row.Clone()
		if i, ok := right[d.keyOf(row)]; ok && !used[i] {
			used[i] = true
			for k, v := range o.Data[i] {
				next[k] = v
			}
		}
		out = append(out, next)
	}
	for i, row := range o.Data {
		if !used[i] {
			out = append(out, row.Clone())
		}
	}
	attrs := slices.Clone(d.Attributes)
	for _, a := range o.Attributes {
		attrs = attrs.With(a)
	}
	keys := d.Keys
	if len(keys) == 0 {
		keys = o.Keys
	}
	return &Dataset{Keys: keys, Attributes: attrs, Data: out}
}
