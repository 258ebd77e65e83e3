package external

import (
	"fmt"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/roach88/strata/internal/expr"
	"github.com/roach88/strata/internal/ir"
)

const (
	druidAllTime   = "1000-01-01T00:00:00.000Z/3000-01-01T00:00:00.000Z"
	druidTimestamp = "timestamp"
	druidTimeZone  = "Etc/UTC"
	// druidTimeFormat renders bucket starts with their offset so they parse
	// back to the same instant.
	druidTimeFormat = "yyyy-MM-dd'T'HH:mm:ss.SSSZZ"
)

// druidTimePart maps time parts to Joda format patterns.
var druidTimePart = map[string]string{
	ir.PartSecondOfMinute: "s",
	ir.PartMinuteOfHour:   "m",
	ir.PartHourOfDay:      "H",
	ir.PartDayOfWeek:      "e",
	ir.PartDayOfMonth:     "d",
	ir.PartDayOfYear:      "D",
	ir.PartWeekOfYear:     "w",
	ir.PartMonthOfYear:    "M",
	ir.PartYear:           "yyyy",
}

var druidArithmetic = map[expr.Op]string{
	expr.OpAdd:      "+",
	expr.OpSubtract: "-",
	expr.OpMultiply: "*",
	expr.OpDivide:   "/",
}

type druidBackend struct{}

func (druidBackend) query(e *External) (Query, PostProcess, error) {
	b := &druidBuilder{e: e}
	q, columns, err := b.build()
	if err != nil {
		return Query{}, nil, err
	}
	return Query{Engine: EngineDruid, Druid: q}, e.postProcess(columns), nil
}

// introspect issues a merged segmentMetadata query. The requester returns
// one row per column with its name, type and hasMultipleValues.
func (druidBackend) introspect(desc SourceDescription) (Query, IntrospectPostProcess, error) {
	q := map[string]any{
		"queryType":     "segmentMetadata",
		"dataSource":    desc.Source,
		"intervals":     []any{druidAllTime},
		"merge":         true,
		"analysisTypes": []any{},
	}
	pp := func(rows []ir.Datum) (ir.Attributes, error) {
		attrs := make(ir.Attributes, 0, len(rows))
		for _, row := range rows {
			name, ok := row.Get("name").(ir.String)
			if !ok || name == "" {
				return nil, ir.NewMalformedError(desc.Source, "column metadata without a name")
			}
			native := row.Get("type").String()
			attr := ir.Attribute{Name: string(name), NativeType: native}
			switch {
			case name == DruidTimeColumn:
				attr.Type = ir.TypeTime
				if desc.TimeAttribute != "" {
					attr.Name = desc.TimeAttribute
				}
			case native == "STRING":
				attr.Type = ir.TypeString
				multi, _ := row.Get("hasMultipleValues").(ir.Bool)
				attr.Multi = bool(multi)
			case native == "LONG" || native == "FLOAT" || native == "DOUBLE":
				attr.Type = ir.TypeNumber
			default:
				// hyperUnique, sketches and other complex metrics
				attr.Type = ir.TypeNumber
				attr.Unsplitable = true
			}
			attrs = append(attrs, attr)
		}
		return attrs, nil
	}
	return Query{Engine: EngineDruid, Druid: q}, pp, nil
}

// druidBuilder accumulates the aggregators and post-aggregators of one
// query.
type druidBuilder struct {
	e     *External
	aggs  []any
	posts []any
	names map[string]bool
	seq   int
}

func (b *druidBuilder) build() (map[string]any, map[string]string, error) {
	e := b.e
	q := map[string]any{
		"dataSource": e.desc.Source,
		"intervals":  []any{druidAllTime},
	}
	if len(e.desc.Context) > 0 {
		q["context"] = maps.Clone(e.desc.Context)
	}
	if e.filter != nil {
		f, err := b.filter(e.filter)
		if err != nil {
			return nil, nil, err
		}
		q["filter"] = f
	}

	switch e.mode {
	case ModeRaw:
		return b.scan(q)
	case ModeValue:
		if err := b.aggregate(valueColumn, e.value, dataRef); err != nil {
			return nil, nil, err
		}
		b.timeseries(q, "all")
		return q, nil, nil
	case ModeTotal:
		for _, a := range e.applies {
			if err := b.aggregate(a.Name, a.Expr, dataRef); err != nil {
				return nil, nil, err
			}
		}
		b.timeseries(q, "all")
		return q, nil, nil
	}

	for _, a := range e.applies {
		if err := b.aggregate(a.Name, a.Expr, e.dataName); err != nil {
			return nil, nil, err
		}
	}
	if g, ok := b.periodKey(); ok {
		b.timeseries(q, g)
		// A split only has buckets that hold rows.
		qc, _ := q["context"].(map[string]any)
		if qc == nil {
			qc = map[string]any{}
		}
		qc["skipEmptyBuckets"] = "true"
		q["context"] = qc
		if e.sort != nil && e.sort.Direction == ir.Descending {
			q["descending"] = true
		}
		if e.limit != nil {
			q["limit"] = *e.limit
		}
		return q, map[string]string{e.splits[0].Name: druidTimestamp}, nil
	}
	if err := b.topN(q); err == nil {
		return q, nil, nil
	}
	return q, nil, b.groupBy(q)
}

func (b *druidBuilder) timeseries(q map[string]any, granularity any) {
	q["queryType"] = "timeseries"
	q["granularity"] = granularity
	b.finish(q)
}

func (b *druidBuilder) finish(q map[string]any) {
	q["aggregations"] = b.aggs
	if len(b.posts) > 0 {
		q["postAggregations"] = b.posts
	}
}

func (b *druidBuilder) scan(q map[string]any) (map[string]any, map[string]string, error) {
	e := b.e
	if len(e.derived) > 0 {
		return nil, nil, ir.NewUnsupportedError(e.String(), "derived columns on druid")
	}
	columns := []any{}
	remap := map[string]string{}
	for _, a := range e.rawAttributes() {
		c := b.column(a.Name)
		if c != a.Name {
			remap[a.Name] = c
		}
		columns = append(columns, c)
	}
	q["queryType"] = "scan"
	q["columns"] = columns
	q["resultFormat"] = "list"
	if e.sort != nil {
		r, ok := e.sort.Expr.(*expr.Ref)
		if !ok || r.Name != e.desc.TimeAttribute {
			return nil, nil, ir.NewUnsupportedError(e.sort.Expr.String(), "druid scans only order by time")
		}
		q["order"] = "ascending"
		if e.sort.Direction == ir.Descending {
			q["order"] = "descending"
		}
	}
	if e.limit != nil {
		q["limit"] = *e.limit
	}
	return q, remap, nil
}

// periodKey returns a period granularity when the split is a single time
// bucket of the time attribute and needs nothing a timeseries cannot do.
func (b *druidBuilder) periodKey() (map[string]any, bool) {
	e := b.e
	if len(e.splits) != 1 || e.having != nil {
		return nil, false
	}
	key := e.splits[0]
	c, ok := key.Expr.(*expr.Chain)
	if !ok || len(c.Actions) != 1 || c.Last().Op != expr.OpTimeBucket {
		return nil, false
	}
	if r, ok := c.Base.(*expr.Ref); !ok || r.Name != e.desc.TimeAttribute {
		return nil, false
	}
	if e.sort != nil {
		if r := e.sort.Expr.(*expr.Ref); r.Name != key.Name {
			return nil, false
		}
	}
	return period(c.Last()), true
}

func period(a expr.Action) map[string]any {
	tz := a.Timezone
	if tz == "" {
		tz = druidTimeZone
	}
	return map[string]any{"type": "period", "period": a.Duration.String(), "timeZone": tz}
}

func (b *druidBuilder) topN(q map[string]any) error {
	e := b.e
	if len(e.splits) != 1 || e.sort == nil || e.limit == nil || e.having != nil {
		return fmt.Errorf("not a topN")
	}
	key := e.splits[0]
	dim, err := b.dimension(key)
	if err != nil {
		return err
	}
	var metric any
	name := e.sort.Expr.(*expr.Ref).Name
	if name == key.Name {
		metric = map[string]any{"type": "dimension", "ordering": ordering(keyType(key.Expr))}
		if e.sort.Direction == ir.Descending {
			metric = map[string]any{"type": "inverted", "metric": metric}
		}
	} else {
		metric = name
		if e.sort.Direction == ir.Ascending {
			metric = map[string]any{"type": "inverted", "metric": name}
		}
	}
	q["queryType"] = "topN"
	q["granularity"] = "all"
	q["dimension"] = dim
	q["metric"] = metric
	q["threshold"] = *e.limit
	b.finish(q)
	return nil
}

func (b *druidBuilder) groupBy(q map[string]any) error {
	e := b.e
	dims := make([]any, len(e.splits))
	for i, k := range e.splits {
		d, err := b.dimension(k)
		if err != nil {
			return err
		}
		dims[i] = d
	}
	q["queryType"] = "groupBy"
	q["granularity"] = "all"
	q["dimensions"] = dims
	b.finish(q)
	if e.having != nil {
		h, err := b.havingSpec(e.having)
		if err != nil {
			return err
		}
		q["having"] = h
	}
	if e.sort != nil || e.limit != nil {
		spec := map[string]any{"type": "default"}
		if e.sort != nil {
			name := e.sort.Expr.(*expr.Ref).Name
			t := ir.TypeNumber
			if k, ok := e.findSplit(name); ok {
				t = keyType(k.Expr)
			}
			dir := "ascending"
			if e.sort.Direction == ir.Descending {
				dir = "descending"
			}
			spec["columns"] = []any{map[string]any{
				"dimension":      name,
				"direction":      dir,
				"dimensionOrder": ordering(t),
			}}
		}
		if e.limit != nil {
			spec["limit"] = *e.limit
		}
		q["limitSpec"] = spec
	}
	return nil
}

func ordering(t ir.Type) string {
	if t == ir.TypeNumber || t == ir.TypeNumberRange {
		return "numeric"
	}
	return "lexicographic"
}

// column returns the Druid column holding an attribute.
func (b *druidBuilder) column(name string) string {
	if name == b.e.desc.TimeAttribute {
		return DruidTimeColumn
	}
	return name
}

// columnOf returns the column a row expression reads directly.
func (b *druidBuilder) columnOf(x expr.Expression) (string, ir.Type, error) {
	r, ok := x.(*expr.Ref)
	if !ok || r.Nest != 0 {
		return "", ir.TypeUnknown, ir.NewUnsupportedError(x.String(), "druid needs a plain column here")
	}
	t := r.T
	if a, ok := b.e.desc.Attributes.Find(r.Name); ok {
		t = a.Type
	}
	return b.column(r.Name), t, nil
}

func (b *druidBuilder) dimension(k expr.SplitKey) (map[string]any, error) {
	dim := map[string]any{"type": "default", "outputName": k.Name}
	if r, ok := k.Expr.(*expr.Ref); ok {
		col, t, err := b.columnOf(r)
		if err != nil {
			return nil, err
		}
		if t == ir.TypeTime {
			dim["type"] = "extraction"
			dim["extractionFn"] = map[string]any{"type": "timeFormat", "format": druidTimeFormat, "timeZone": druidTimeZone}
		}
		dim["dimension"] = col
		return dim, nil
	}

	c, ok := k.Expr.(*expr.Chain)
	if !ok || len(c.Actions) != 1 {
		return nil, ir.NewUnsupportedError(k.Expr.String(), "druid splits on a column or one bucketing step")
	}
	col, t, err := b.columnOf(c.Base)
	if err != nil {
		return nil, err
	}
	a := c.Last()
	var fn map[string]any
	switch a.Op {
	case expr.OpTimeBucket, expr.OpTimeFloor:
		if t != ir.TypeTime {
			return nil, ir.NewUnsupportedError(k.Expr.String(), "time bucket of a non-time column")
		}
		fn = map[string]any{"type": "timeFormat", "format": druidTimeFormat, "timeZone": druidTimeZone, "granularity": period(a)}
	case expr.OpTimePart:
		format, ok := druidTimePart[a.Part]
		if !ok || t != ir.TypeTime {
			return nil, ir.NewUnsupportedError(k.Expr.String(), "time part %s on druid", a.Part)
		}
		tz := a.Timezone
		if tz == "" {
			tz = druidTimeZone
		}
		fn = map[string]any{"type": "timeFormat", "format": format, "timeZone": tz}
	case expr.OpNumberBucket:
		fn = map[string]any{"type": "bucket", "size": a.Size, "offset": a.Offset}
	case expr.OpSubstr:
		fn = map[string]any{"type": "substring", "index": a.Position, "length": a.Length}
	default:
		return nil, ir.NewUnsupportedError(k.Expr.String(), "split on %s for druid", a.Op)
	}
	dim["type"] = "extraction"
	dim["dimension"] = col
	dim["extractionFn"] = fn
	return dim, nil
}

// fresh returns an unused intermediate aggregator name.
func (b *druidBuilder) fresh() string {
	for {
		name := "!T_" + strconv.Itoa(b.seq)
		b.seq++
		if !b.names[name] {
			return name
		}
	}
}

func (b *druidBuilder) addAggregator(agg map[string]any) {
	if b.names == nil {
		b.names = map[string]bool{}
	}
	name := agg["name"].(string)
	if b.names[name] {
		return
	}
	b.names[name] = true
	b.aggs = append(b.aggs, agg)
}

// aggregate emits the aggregators computing x as output name. A plain
// aggregate of the data becomes an aggregator of that name; anything
// combined becomes a named post-aggregator.
func (b *druidBuilder) aggregate(name string, x expr.Expression, data string) error {
	if c, ok := x.(*expr.Chain); ok && isData(c.Base, data) {
		filters, agg, rest := splitAggregate(c.Actions)
		if agg != nil && len(rest) == 0 && b.direct(*agg) {
			_, err := b.aggregator(*agg, filters, name)
			return err
		}
	}
	post, err := b.term(x, data)
	if err != nil {
		return err
	}
	post = maps.Clone(post)
	post["name"] = name
	b.posts = append(b.posts, post)
	return nil
}

func isData(x expr.Expression, data string) bool {
	r, ok := x.(*expr.Ref)
	return ok && r.Name == data && r.Nest == 0
}

// splitAggregate separates leading filters, the aggregate and the scalar
// steps applied to its result.
func splitAggregate(actions []expr.Action) ([]expr.Expression, *expr.Action, []expr.Action) {
	var filters []expr.Expression
	i := 0
	for ; i < len(actions) && actions[i].Op == expr.OpFilter; i++ {
		filters = append(filters, actions[i].Expr)
	}
	if i == len(actions) || !actions[i].Op.IsAggregate() {
		return filters, nil, nil
	}
	return filters, &actions[i], actions[i+1:]
}

// direct reports whether a's result is a single aggregator that can carry
// the output name itself.
func (b *druidBuilder) direct(a expr.Action) bool {
	switch a.Op {
	case expr.OpCount, expr.OpSum, expr.OpMin, expr.OpMax, expr.OpCountDistinct:
		return true
	case expr.OpCustom:
		custom, ok := b.e.desc.CustomAggregations[a.Custom]
		return ok && custom.PostAggregation == nil
	}
	return false
}

// term returns a post-aggregator computing x.
func (b *druidBuilder) term(x expr.Expression, data string) (map[string]any, error) {
	switch v := x.(type) {
	case *expr.Literal:
		n, ok := v.Value.(ir.Number)
		if !ok {
			return nil, ir.NewUnsupportedError(v.String(), "druid post-aggregations are numeric")
		}
		return map[string]any{"type": "constant", "value": float64(n)}, nil
	case *expr.Chain:
		var cur map[string]any
		var rest []expr.Action
		if isData(v.Base, data) {
			filters, agg, tail := splitAggregate(v.Actions)
			if agg == nil {
				return nil, ir.NewUnsupportedError(v.String(), "druid needs an aggregate of the data")
			}
			var err error
			if cur, err = b.aggregator(*agg, filters, b.fresh()); err != nil {
				return nil, err
			}
			rest = tail
		} else {
			var err error
			if cur, err = b.term(v.Base, data); err != nil {
				return nil, err
			}
			rest = v.Actions
		}
		for _, a := range rest {
			fn, ok := druidArithmetic[a.Op]
			if !ok {
				return nil, ir.NewUnsupportedError(a.String(), "%s in a druid post-aggregation", a.Op)
			}
			rhs, err := b.term(a.Expr, data)
			if err != nil {
				return nil, err
			}
			cur = map[string]any{"type": "arithmetic", "fn": fn, "fields": []any{cur, rhs}}
		}
		return cur, nil
	}
	return nil, ir.NewUnsupportedError(x.String(), "cannot compute on druid")
}

// aggregator adds the aggregators for a under name and returns the
// post-aggregator reading the result.
func (b *druidBuilder) aggregator(a expr.Action, filters []expr.Expression, name string) (map[string]any, error) {
	var filter map[string]any
	if len(filters) > 0 {
		var pred expr.Expression
		for _, f := range filters {
			pred = and(pred, f)
		}
		var err error
		if filter, err = b.filter(pred); err != nil {
			return nil, err
		}
	}
	add := func(agg map[string]any) {
		if filter != nil {
			agg = map[string]any{"type": "filtered", "name": agg["name"], "filter": filter, "aggregator": agg}
		}
		b.addAggregator(agg)
	}
	access := func(n string) map[string]any {
		return map[string]any{"type": "fieldAccess", "fieldName": n}
	}
	metric := func() (string, error) {
		col, t, err := b.columnOf(a.Expr)
		if err != nil {
			return "", err
		}
		if t != ir.TypeNumber {
			return "", ir.NewUnsupportedError(a.String(), "druid aggregates %s of numeric columns", a.Op)
		}
		return col, nil
	}

	switch a.Op {
	case expr.OpCount:
		add(map[string]any{"type": "count", "name": name})
		return access(name), nil
	case expr.OpSum, expr.OpMin, expr.OpMax:
		col, err := metric()
		if err != nil {
			return nil, err
		}
		kind := map[expr.Op]string{expr.OpSum: "doubleSum", expr.OpMin: "doubleMin", expr.OpMax: "doubleMax"}[a.Op]
		add(map[string]any{"type": kind, "name": name, "fieldName": col})
		return access(name), nil
	case expr.OpAverage:
		col, err := metric()
		if err != nil {
			return nil, err
		}
		sum, count := b.fresh(), b.fresh()
		add(map[string]any{"type": "doubleSum", "name": sum, "fieldName": col})
		counted := map[string]any{
			"type":       "filtered",
			"name":       count,
			"filter":     map[string]any{"type": "not", "field": map[string]any{"type": "selector", "dimension": col, "value": nil}},
			"aggregator": map[string]any{"type": "count", "name": count},
		}
		add(counted)
		return map[string]any{"type": "arithmetic", "fn": "/", "fields": []any{access(sum), access(count)}}, nil
	case expr.OpCountDistinct:
		col, _, err := b.columnOf(a.Expr)
		if err != nil {
			return nil, err
		}
		attr, _ := b.e.desc.Attributes.Find(a.Expr.(*expr.Ref).Name)
		if attr.NativeType == "hyperUnique" {
			add(map[string]any{"type": "hyperUnique", "name": name, "fieldName": col, "round": true})
		} else {
			add(map[string]any{"type": "cardinality", "name": name, "fields": []any{col}, "round": true})
		}
		return map[string]any{"type": "finalizingFieldAccess", "fieldName": name}, nil
	case expr.OpQuantile:
		col, err := metric()
		if err != nil {
			return nil, err
		}
		sketch := b.fresh()
		add(map[string]any{"type": "quantilesDoublesSketch", "name": sketch, "fieldName": col})
		return map[string]any{"type": "quantilesDoublesSketchToQuantile", "field": access(sketch), "fraction": a.Quantile}, nil
	case expr.OpCustom:
		custom, ok := b.e.desc.CustomAggregations[a.Custom]
		if !ok {
			return nil, ir.NewUnsupportedError(a.String(), "unknown custom aggregation %q", a.Custom)
		}
		aggName := a.Custom
		if custom.PostAggregation == nil {
			aggName = name
		}
		agg := map[string]any{}
		maps.Copy(agg, custom.Aggregation)
		agg["name"] = aggName
		add(agg)
		if custom.PostAggregation == nil {
			return access(aggName), nil
		}
		return maps.Clone(custom.PostAggregation), nil
	}
	return nil, ir.NewUnsupportedError(a.String(), "aggregate %s on druid", a.Op)
}

// filter translates a row predicate into a Druid filter.
func (b *druidBuilder) filter(x expr.Expression) (map[string]any, error) {
	switch v := x.(type) {
	case *expr.Literal:
		if bv, ok := v.Value.(ir.Bool); ok {
			if bv {
				return map[string]any{"type": "true"}, nil
			}
			return map[string]any{"type": "false"}, nil
		}
	case *expr.Ref:
		if _, t, err := b.columnOf(v); err == nil && t == ir.TypeBoolean {
			return map[string]any{"type": "selector", "dimension": b.column(v.Name), "value": "true"}, nil
		}
	case *expr.Chain:
		if len(v.Actions) == 0 {
			return b.filter(v.Base)
		}
		last := v.Last()
		var lhs expr.Expression = v.Base
		if len(v.Actions) > 1 {
			c, err := expr.NewChain(v.Base, v.Actions[:len(v.Actions)-1]...)
			if err != nil {
				return nil, err
			}
			lhs = c
		}
		switch last.Op {
		case expr.OpAnd, expr.OpOr:
			l, err := b.filter(lhs)
			if err != nil {
				return nil, err
			}
			r, err := b.filter(last.Expr)
			if err != nil {
				return nil, err
			}
			kind := "and"
			if last.Op == expr.OpOr {
				kind = "or"
			}
			return map[string]any{"type": kind, "fields": append(flatten(kind, l), flatten(kind, r)...)}, nil
		case expr.OpNot:
			f, err := b.filter(lhs)
			if err != nil {
				return nil, err
			}
			return map[string]any{"type": "not", "field": f}, nil
		}
		return b.comparison(lhs, last)
	}
	return nil, ir.NewUnsupportedError(x.String(), "filter cannot be expressed on druid")
}

func flatten(kind string, f map[string]any) []any {
	if f["type"] == kind {
		return f["fields"].([]any)
	}
	return []any{f}
}

func (b *druidBuilder) comparison(lhs expr.Expression, a expr.Action) (map[string]any, error) {
	col, t, err := b.columnOf(lhs)
	if err != nil {
		return nil, err
	}
	var arg ir.Value
	if a.Expr != nil {
		l, ok := a.Expr.(*expr.Literal)
		if !ok {
			return nil, ir.NewUnsupportedError(a.String(), "druid compares columns with literals")
		}
		arg = l.Value
	}
	if t == ir.TypeTime {
		return timeFilter(col, a, arg)
	}

	switch a.Op {
	case expr.OpIs:
		return selector(col, arg), nil
	case expr.OpIn:
		return b.in(col, t, arg)
	case expr.OpLessThan, expr.OpLessThanOrEqual, expr.OpGreaterThan, expr.OpGreaterThanOrEqual:
		bound := map[string]any{"type": "bound", "dimension": col, "ordering": ordering(t)}
		s := druidString(arg)
		switch a.Op {
		case expr.OpLessThan:
			bound["upper"], bound["upperStrict"] = s, true
		case expr.OpLessThanOrEqual:
			bound["upper"] = s
		case expr.OpGreaterThan:
			bound["lower"], bound["lowerStrict"] = s, true
		case expr.OpGreaterThanOrEqual:
			bound["lower"] = s
		}
		return bound, nil
	case expr.OpContains:
		return map[string]any{
			"type":      "search",
			"dimension": col,
			"query":     map[string]any{"type": "contains", "value": druidString(arg), "caseSensitive": true},
		}, nil
	case expr.OpMatch:
		return map[string]any{"type": "regex", "dimension": col, "pattern": a.Pattern}, nil
	}
	return nil, ir.NewUnsupportedError(a.String(), "filter %s on druid", a.Op)
}

func selector(col string, v ir.Value) map[string]any {
	if ir.IsNull(v) {
		return map[string]any{"type": "selector", "dimension": col, "value": nil}
	}
	return map[string]any{"type": "selector", "dimension": col, "value": druidString(v)}
}

func (b *druidBuilder) in(col string, t ir.Type, arg ir.Value) (map[string]any, error) {
	switch v := arg.(type) {
	case ir.Set:
		var values []any
		var fields []any
		for _, el := range v.Elements {
			switch {
			case ir.IsNull(el):
				fields = append(fields, selector(col, el))
			case el.Type().IsRange():
				f, err := rangeFilter(col, t, el)
				if err != nil {
					return nil, err
				}
				fields = append(fields, f)
			default:
				values = append(values, druidString(el))
			}
		}
		if len(values) > 0 || len(fields) == 0 {
			if values == nil {
				values = []any{}
			}
			fields = append([]any{map[string]any{"type": "in", "dimension": col, "values": values}}, fields...)
		}
		if len(fields) == 1 {
			return fields[0].(map[string]any), nil
		}
		return map[string]any{"type": "or", "fields": fields}, nil
	case ir.NumberRange, ir.StringRange:
		return rangeFilter(col, t, v)
	}
	return nil, ir.NewUnsupportedError(arg.String(), "in operand for druid")
}

func rangeFilter(col string, t ir.Type, r ir.Value) (map[string]any, error) {
	bounds := ir.RangeBounds(r)
	bound := map[string]any{"type": "bound", "dimension": col, "ordering": ordering(t)}
	switch v := r.(type) {
	case ir.NumberRange:
		bound["ordering"] = "numeric"
		if !math.IsInf(v.Start, 0) {
			bound["lower"] = strconv.FormatFloat(v.Start, 'f', -1, 64)
		}
		if !math.IsInf(v.End, 0) {
			bound["upper"] = strconv.FormatFloat(v.End, 'f', -1, 64)
		}
	case ir.StringRange:
		if v.Start != "" {
			bound["lower"] = v.Start
		}
		if v.End != "" {
			bound["upper"] = v.End
		}
	default:
		return nil, ir.NewUnsupportedError(r.String(), "range for druid")
	}
	if _, ok := bound["lower"]; ok && bounds[0] == '(' {
		bound["lowerStrict"] = true
	}
	if _, ok := bound["upper"]; ok && bounds[1] == ')' {
		bound["upperStrict"] = true
	}
	return bound, nil
}

// timeFilter expresses predicates on the time column as interval filters.
func timeFilter(col string, a expr.Action, arg ir.Value) (map[string]any, error) {
	var start, end time.Time
	ms := time.Millisecond
	switch v := arg.(type) {
	case ir.TimeRange:
		if a.Op != expr.OpIn {
			break
		}
		bounds := ir.RangeBounds(v)
		start, end = v.Start, v.End
		if !start.IsZero() && bounds[0] == '(' {
			start = start.Add(ms)
		}
		if !end.IsZero() && bounds[1] == ']' {
			end = end.Add(ms)
		}
		return interval(col, start, end), nil
	case ir.Time:
		switch a.Op {
		case expr.OpIs:
			return interval(col, v.Time, v.Time.Add(ms)), nil
		case expr.OpLessThan:
			return interval(col, start, v.Time), nil
		case expr.OpLessThanOrEqual:
			return interval(col, start, v.Time.Add(ms)), nil
		case expr.OpGreaterThan:
			return interval(col, v.Time.Add(ms), end), nil
		case expr.OpGreaterThanOrEqual:
			return interval(col, v.Time, end), nil
		}
	}
	return nil, ir.NewUnsupportedError(a.String(), "time filter on druid")
}

func interval(col string, start, end time.Time) map[string]any {
	format := func(t time.Time, open string) string {
		if t.IsZero() {
			return open
		}
		return t.UTC().Format("2006-01-02T15:04:05.000Z")
	}
	iv := format(start, "1000-01-01T00:00:00.000Z") + "/" + format(end, "3000-01-01T00:00:00.000Z")
	return map[string]any{"type": "interval", "dimension": col, "intervals": []any{iv}}
}

// druidString renders a literal the way Druid compares dimension values.
func druidString(v ir.Value) string {
	switch x := v.(type) {
	case ir.String:
		return string(x)
	case ir.Number:
		return strconv.FormatFloat(float64(x), 'f', -1, 64)
	case ir.Bool:
		return strconv.FormatBool(bool(x))
	case ir.Time:
		return x.Time.UTC().Format(time.RFC3339Nano)
	case nil:
		return ""
	}
	return v.String()
}

// havingSpec translates a filter on output columns.
func (b *druidBuilder) havingSpec(x expr.Expression) (map[string]any, error) {
	c, ok := x.(*expr.Chain)
	if !ok || len(c.Actions) == 0 {
		return nil, ir.NewUnsupportedError(x.String(), "having on druid")
	}
	last := c.Last()
	var lhs expr.Expression = c.Base
	if len(c.Actions) > 1 {
		var err error
		if lhs, err = expr.NewChain(c.Base, c.Actions[:len(c.Actions)-1]...); err != nil {
			return nil, err
		}
	}
	switch last.Op {
	case expr.OpAnd, expr.OpOr:
		l, err := b.havingSpec(lhs)
		if err != nil {
			return nil, err
		}
		r, err := b.havingSpec(last.Expr)
		if err != nil {
			return nil, err
		}
		kind := "and"
		if last.Op == expr.OpOr {
			kind = "or"
		}
		return map[string]any{"type": kind, "havingSpecs": []any{l, r}}, nil
	case expr.OpNot:
		h, err := b.havingSpec(lhs)
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "not", "havingSpec": h}, nil
	}

	r, ok := lhs.(*expr.Ref)
	l, isLit := last.Expr.(*expr.Literal)
	if !ok || !isLit {
		return nil, ir.NewUnsupportedError(x.String(), "having compares an output column with a literal")
	}
	if _, isKey := b.e.findSplit(r.Name); isKey {
		if last.Op != expr.OpIs {
			return nil, ir.NewUnsupportedError(x.String(), "having on a split key")
		}
		return map[string]any{"type": "dimSelector", "dimension": r.Name, "value": druidString(l.Value)}, nil
	}
	n, ok := l.Value.(ir.Number)
	if !ok {
		return nil, ir.NewUnsupportedError(x.String(), "having on a non-numeric value")
	}
	cmp := func(kind string) map[string]any {
		return map[string]any{"type": kind, "aggregation": r.Name, "value": float64(n)}
	}
	switch last.Op {
	case expr.OpIs:
		return cmp("equalTo"), nil
	case expr.OpGreaterThan:
		return cmp("greaterThan"), nil
	case expr.OpLessThan:
		return cmp("lessThan"), nil
	case expr.OpGreaterThanOrEqual:
		return map[string]any{"type": "not", "havingSpec": cmp("lessThan")}, nil
	case expr.OpLessThanOrEqual:
		return map[string]any{"type": "not", "havingSpec": cmp("greaterThan")}, nil
	}
	return nil, ir.NewUnsupportedError(x.String(), "having %s on druid", last.Op)
}
