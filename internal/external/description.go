package external

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/strata/internal/dialect"
	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

// EngineDruid identifies the columnar engine queried with native JSON.
const EngineDruid = "druid"

// DruidTimeColumn is the name Druid gives the primary time column.
const DruidTimeColumn = "__time"

// SourceDescription declares one remote relation.
type SourceDescription struct {
	// Engine is "druid" or one of the SQL engines (mysql, postgres, sqlite).
	Engine string `json:"engine" yaml:"engine"`

	// Source is the table or datasource name.
	Source string `json:"source" yaml:"source"`

	// TimeAttribute names the primary time column. Druid maps it to __time.
	TimeAttribute string `json:"timeAttribute,omitempty" yaml:"timeAttribute,omitempty"`

	// Attributes is the column schema. It may be empty until introspected.
	Attributes ir.Attributes `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Filter is a base row filter always applied to the source.
	Filter expr.Expression `json:"-" yaml:"-"`

	// Context is passed through to the backend verbatim (Druid "context").
	Context map[string]any `json:"context,omitempty" yaml:"context,omitempty"`

	// CustomAggregations maps names usable with custom("name") to raw
	// backend aggregator definitions.
	CustomAggregations map[string]CustomAggregation `json:"customAggregations,omitempty" yaml:"customAggregations,omitempty"`
}

// CustomAggregation is an opaque backend aggregator.
type CustomAggregation struct {
	// Aggregation is the Druid aggregator object; its "name" is set when
	// the query is built.
	Aggregation map[string]any `json:"aggregation" yaml:"aggregation"`

	// PostAggregation optionally finalizes the aggregator.
	PostAggregation map[string]any `json:"postAggregation,omitempty" yaml:"postAggregation,omitempty"`
}

// Validate checks the description for use.
func (d SourceDescription) Validate() error {
	if d.Source == "" {
		return fmt.Errorf("source description: missing source")
	}
	if d.Engine != EngineDruid {
		if _, err := dialect.ForEngine(d.Engine); err != nil {
			return fmt.Errorf("source %q: %w", d.Source, err)
		}
		if len(d.CustomAggregations) > 0 {
			return ir.NewUnsupportedError(d.Engine, "custom aggregations need a druid source")
		}
	}
	seen := map[string]bool{}
	for _, a := range d.Attributes {
		if a.Name == "" {
			return fmt.Errorf("source %q: attribute without a name", d.Source)
		}
		if seen[a.Name] {
			return fmt.Errorf("source %q: duplicate attribute %q", d.Source, a.Name)
		}
		if !a.Type.Valid() || a.Type == ir.TypeDataset {
			return ir.NewTypeError(a.Name, "attribute %q has unusable type %s", a.Name, a.Type)
		}
		seen[a.Name] = true
	}
	if d.TimeAttribute != "" && len(d.Attributes) > 0 {
		attr, ok := d.Attributes.Find(d.TimeAttribute)
		if !ok || attr.Type != ir.TypeTime {
			return ir.NewTypeError(d.TimeAttribute, "time attribute must be a TIME column of %q", d.Source)
		}
	}
	if d.Filter != nil {
		if t := d.Filter.Type(); t.Known() && t != ir.TypeBoolean {
			return ir.NewTypeError(d.Filter.String(), "base filter must be BOOLEAN, got %s", t)
		}
	}
	return nil
}

// IsSQL reports whether the source is queried with SQL.
func (d SourceDescription) IsSQL() bool {
	return dialect.IsSQLEngine(d.Engine)
}

// equal compares the identity of two descriptions: the same relation seen
// through the same base filter.
func (d SourceDescription) equal(o SourceDescription) bool {
	if d.Engine != o.Engine || d.Source != o.Source || d.TimeAttribute != o.TimeAttribute {
		return false
	}
	if (d.Filter == nil) != (o.Filter == nil) || d.Filter != nil && !d.Filter.Equals(o.Filter) {
		return false
	}
	if !slices.EqualFunc(d.Attributes, o.Attributes, func(a, b ir.Attribute) bool {
		return a.Name == b.Name && a.Type == b.Type
	}) {
		return false
	}
	return jsonEqual(d.Context, o.Context)
}

func jsonEqual(a, b any) bool {
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}
