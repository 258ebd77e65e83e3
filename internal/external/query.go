package external

import (
	"encoding/json"

	"github.com/roach88/strata/internal/ir"
)

// Query is a compiled backend query. Exactly one of SQL and Druid is set.
//
// Requesters answer a Query with flat rows: one ir.Datum per SQL result
// row, or per Druid result entry with the entry's "timestamp" alongside the
// fields of its "result" or "event" object.
type Query struct {
	Engine string         `json:"engine" yaml:"engine"`
	SQL    string         `json:"sql,omitempty" yaml:"sql,omitempty"`
	Druid  map[string]any `json:"druid,omitempty" yaml:"druid,omitempty"`
}

// String returns the SQL text or the Druid JSON.
func (q Query) String() string {
	if q.Druid == nil {
		return q.SQL
	}
	data, err := json.Marshal(q.Druid)
	if err != nil {
		return "<invalid druid query: " + err.Error() + ">"
	}
	return string(data)
}

// Fingerprint identifies the query for caching.
func (q Query) Fingerprint() (string, error) {
	return ir.Fingerprint(ir.DomainQuery, map[string]any{
		"engine": q.Engine,
		"sql":    q.SQL,
		"druid":  q.Druid,
	})
}

// QueryAndPostProcess compiles the External's state into a backend query
// and the function that turns the backend's rows into the External's value.
func (e *External) QueryAndPostProcess() (Query, PostProcess, error) {
	return e.backend.query(e)
}

// IntrospectQueryAndPostProcess returns a schema query for the source and
// the function that turns its rows into attributes.
func (e *External) IntrospectQueryAndPostProcess() (Query, IntrospectPostProcess, error) {
	q, pp, err := e.backend.introspect(e.desc)
	if err != nil {
		return Query{}, nil, err
	}
	timeAttr := e.desc.TimeAttribute
	return q, func(rows []ir.Datum) (ir.Attributes, error) {
		attrs, err := pp(rows)
		if err != nil {
			return nil, err
		}
		if timeAttr == "" {
			return attrs, nil
		}
		for i := range attrs {
			if attrs[i].Name == timeAttr {
				attrs[i].Type = ir.TypeTime
			}
		}
		return attrs, nil
	}, nil
}

// WithAttributes returns a raw External over the same source with the
// given schema, typically the result of introspection.
func (e *External) WithAttributes(attrs ir.Attributes) (*External, error) {
	desc := e.desc
	desc.Attributes = attrs
	return New(desc)
}
