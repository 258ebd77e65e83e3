package expr

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Action is one step of a Chain. Op selects the operation; only the fields
// that operation uses are set.
type Action struct {
	Op Op

	// Expr is the operand: the filter predicate, applied expression, sort
	// key, aggregated expression or right-hand side of a scalar operation.
	Expr Expression

	// Name is the output column of an apply.
	Name string

	// Splits and DataName describe a split: one output column per key and
	// the column holding each group's rows.
	Splits   []SplitKey
	DataName string

	Direction ir.Direction // sort
	Limit     int          // limit
	Names     []string     // select
	Quantile  float64      // quantile
	Custom    string       // custom aggregate name

	Pattern  string // match, extract
	Position int    // substr
	Length   int    // substr

	Duration ir.Duration // timeFloor, timeBucket, timeShift
	Step     int         // timeShift
	Timezone string      // time operations; empty is UTC
	Part     string      // timePart

	Size   float64 // numberBucket
	Offset float64 // numberBucket
}

// SplitKey is one grouping key of a split action.
type SplitKey struct {
	Name string
	Expr Expression
}

// Constructors for each operation.

func Filter(pred Expression) Action          { return Action{Op: OpFilter, Expr: pred} }
func Apply(name string, e Expression) Action { return Action{Op: OpApply, Name: name, Expr: e} }
func Limit(n int) Action                     { return Action{Op: OpLimit, Limit: n} }
func Select(names ...string) Action          { return Action{Op: OpSelect, Names: names} }
func Count() Action                          { return Action{Op: OpCount} }
func Sum(e Expression) Action                { return Action{Op: OpSum, Expr: e} }
func Min(e Expression) Action                { return Action{Op: OpMin, Expr: e} }
func Max(e Expression) Action                { return Action{Op: OpMax, Expr: e} }
func Average(e Expression) Action            { return Action{Op: OpAverage, Expr: e} }
func CountDistinct(e Expression) Action      { return Action{Op: OpCountDistinct, Expr: e} }
func Custom(name string) Action              { return Action{Op: OpCustom, Custom: name} }
func Group(e Expression) Action              { return Action{Op: OpGroup, Expr: e} }
func Join(other Expression) Action           { return Action{Op: OpJoin, Expr: other} }
func Not() Action                            { return Action{Op: OpNot} }
func Absolute() Action                       { return Action{Op: OpAbsolute} }
func Length() Action                         { return Action{Op: OpLength} }
func Cardinality() Action                    { return Action{Op: OpCardinality} }
func Match(pattern string) Action            { return Action{Op: OpMatch, Pattern: pattern} }
func Extract(pattern string) Action          { return Action{Op: OpExtract, Pattern: pattern} }
func Substr(position, length int) Action {
	return Action{Op: OpSubstr, Position: position, Length: length}
}
func NumberBucket(size, offset float64) Action {
	return Action{Op: OpNumberBucket, Size: size, Offset: offset}
}

// Sort orders a dataset by e.
func Sort(e Expression, dir ir.Direction) Action {
	if dir == "" {
		dir = ir.Ascending
	}
	return Action{Op: OpSort, Expr: e, Direction: dir}
}

// Split groups a dataset by the given keys, nesting each group's rows under
// dataName.
func Split(keys []SplitKey, dataName string) Action {
	return Action{Op: OpSplit, Splits: keys, DataName: dataName}
}

// Quantile computes the nearest-rank q-quantile of e.
func Quantile(e Expression, q float64) Action {
	return Action{Op: OpQuantile, Expr: e, Quantile: q}
}

// Binary returns a scalar action with a right-hand operand (is, add, ...).
func Binary(op Op, rhs Expression) Action {
	return Action{Op: op, Expr: rhs}
}

func TimeFloor(d ir.Duration, tz string) Action {
	return Action{Op: OpTimeFloor, Duration: d, Timezone: tz}
}

func TimeBucket(d ir.Duration, tz string) Action {
	return Action{Op: OpTimeBucket, Duration: d, Timezone: tz}
}

func TimeShift(d ir.Duration, step int, tz string) Action {
	return Action{Op: OpTimeShift, Duration: d, Step: step, Timezone: tz}
}

func TimePart(part, tz string) Action {
	return Action{Op: OpTimePart, Part: part, Timezone: tz}
}

// SplitNames returns the output names of a split's keys.
func (a Action) SplitNames() []string {
	names := make([]string, len(a.Splits))
	for i, k := range a.Splits {
		names[i] = k.Name
	}
	return names
}

// Operands returns every expression the action evaluates.
func (a Action) Operands() []Expression {
	var out []Expression
	if a.Expr != nil {
		out = append(out, a.Expr)
	}
	for _, k := range a.Splits {
		out = append(out, k.Expr)
	}
	return out
}

// WithOperands returns a copy of a with its operand expressions mapped by fn.
func (a Action) WithOperands(fn func(Expression) (Expression, error)) (Action, error) {
	out := a
	if a.Expr != nil {
		e, err := fn(a.Expr)
		if err != nil {
			return Action{}, err
		}
		out.Expr = e
	}
	if a.Splits != nil {
		out.Splits = make([]SplitKey, len(a.Splits))
		for i, k := range a.Splits {
			e, err := fn(k.Expr)
			if err != nil {
				return Action{}, err
			}
			out.Splits[i] = SplitKey{Name: k.Name, Expr: e}
		}
	}
	return out, nil
}

// outputType type-checks the action against its input type and returns the
// resulting type.
func (a Action) outputType(in ir.Type) (ir.Type, error) {
	sig := a.Op.sig()
	if sig.output == nil {
		return ir.TypeUnknown, ir.NewTypeError(a.String(), "unknown operation")
	}
	if err := a.validate(); err != nil {
		return ir.TypeUnknown, err
	}
	arg := ir.TypeUnknown
	if a.Expr != nil {
		arg = a.Expr.Type()
	}
	switch sig.operand {
	case operandNone:
		if a.Expr != nil {
			return ir.TypeUnknown, ir.NewTypeError(a.String(), "%s takes no operand", sig.name)
		}
	default:
		if a.Expr == nil {
			return ir.TypeUnknown, ir.NewTypeError(a.String(), "%s requires an operand", sig.name)
		}
	}
	out, ok := sig.output(in, arg)
	if !ok {
		if in.Known() && !accepts(in, ir.TypeDataset) && sig.kind != kindScalar {
			return ir.TypeUnknown, ir.NewTypeError(a.String(), "%s must be applied to a DATASET, got %s", sig.name, in)
		}
		return ir.TypeUnknown, ir.NewTypeError(a.String(), "%s does not accept %s with operand %s", sig.name, typeName(in), typeName(arg))
	}
	if a.Op == OpSplit {
		for _, k := range a.Splits {
			if k.Expr.Type() == ir.TypeDataset {
				return ir.TypeUnknown, ir.NewTypeError(a.String(), "split key %q must not be a DATASET", k.Name)
			}
		}
	}
	return out, nil
}

func typeName(t ir.Type) string {
	if !t.Known() {
		return "?"
	}
	return string(t)
}

// validate checks the non-expression arguments of the action.
func (a Action) validate() error {
	switch a.Op {
	case OpApply:
		if a.Name == "" {
			return ir.NewTypeError(a.String(), "apply requires a name")
		}
	case OpSplit:
		if len(a.Splits) == 0 {
			return ir.NewTypeError(a.String(), "split requires at least one key")
		}
		seen := map[string]bool{}
		for _, k := range a.Splits {
			if k.Name == "" || k.Expr == nil || seen[k.Name] {
				return ir.NewTypeError(a.String(), "split keys need distinct names and expressions")
			}
			seen[k.Name] = true
		}
		if a.DataName == "" {
			return ir.NewTypeError(a.String(), "split requires a data name")
		}
	case OpSort:
		if _, err := ir.ParseDirection(string(a.Direction)); err != nil {
			return ir.NewTypeError(a.String(), "%v", err)
		}
	case OpLimit:
		if a.Limit < 0 {
			return ir.NewTypeError(a.String(), "limit must not be negative")
		}
	case OpSelect:
		if len(a.Names) == 0 {
			return ir.NewTypeError(a.String(), "select requires at least one name")
		}
	case OpQuantile:
		if a.Quantile < 0 || a.Quantile > 1 {
			return ir.NewTypeError(a.String(), "quantile must be within [0,1]")
		}
	case OpCustom:
		if a.Custom == "" {
			return ir.NewTypeError(a.String(), "custom requires an aggregation name")
		}
	case OpMatch, OpExtract:
		if _, err := regexp.Compile(a.Pattern); err != nil {
			return ir.NewTypeError(a.String(), "invalid pattern: %v", err)
		}
	case OpSubstr:
		if a.Position < 0 || a.Length < 0 {
			return ir.NewTypeError(a.String(), "substr position and length must not be negative")
		}
	case OpTimeFloor, OpTimeBucket:
		if !a.Duration.IsFloorable() {
			return ir.NewUnsupportedError(a.Duration.String(), "duration is not floorable")
		}
	case OpTimeShift:
		if a.Duration.IsZero() {
			return ir.NewTypeError(a.String(), "timeShift requires a duration")
		}
	case OpTimePart:
		if !ir.IsTimePart(a.Part) {
			return ir.NewUnsupportedError(a.Part, "unknown time part")
		}
	case OpNumberBucket:
		if a.Size <= 0 {
			return ir.NewTypeError(a.String(), "numberBucket size must be positive")
		}
	}
	switch a.Op {
	case OpTimeFloor, OpTimeBucket, OpTimeShift, OpTimePart:
		if _, err := ir.LoadTimezone(a.Timezone); err != nil {
			return err
		}
	}
	return nil
}

// Equals reports structural equality of two actions.
func (a Action) Equals(o Action) bool {
	if a.Op != o.Op || a.Name != o.Name || a.DataName != o.DataName ||
		a.Direction != o.Direction || a.Limit != o.Limit || a.Quantile != o.Quantile ||
		a.Custom != o.Custom || a.Pattern != o.Pattern || a.Position != o.Position ||
		a.Length != o.Length || a.Duration != o.Duration || a.Step != o.Step ||
		a.Timezone != o.Timezone || a.Part != o.Part || a.Size != o.Size ||
		a.Offset != o.Offset || !slices.Equal(a.Names, o.Names) ||
		!equalExpr(a.Expr, o.Expr) || len(a.Splits) != len(o.Splits) {
		return false
	}
	for i := range a.Splits {
		if a.Splits[i].Name != o.Splits[i].Name || !equalExpr(a.Splits[i].Expr, o.Splits[i].Expr) {
			return false
		}
	}
	return true
}

// String returns the canonical form of the action, e.g. `apply("Count",$data.count())`.
func (a Action) String() string {
	name := a.Op.String()
	var args []string
	switch a.Op {
	case OpApply:
		args = []string{strconv.Quote(a.Name), exprString(a.Expr)}
	case OpSplit:
		if len(a.Splits) == 1 {
			args = []string{exprString(a.Splits[0].Expr), strconv.Quote(a.Splits[0].Name)}
		} else {
			keys := make([]string, len(a.Splits))
			for i, k := range a.Splits {
				keys[i] = strconv.Quote(k.Name) + ":" + exprString(k.Expr)
			}
			args = []string{"{" + strings.Join(keys, ",") + "}"}
		}
		args = append(args, strconv.Quote(a.DataName))
	case OpSort:
		args = []string{exprString(a.Expr), strconv.Quote(string(a.Direction))}
	case OpLimit:
		args = []string{strconv.Itoa(a.Limit)}
	case OpSelect:
		for _, n := range a.Names {
			args = append(args, strconv.Quote(n))
		}
	case OpQuantile:
		args = []string{exprString(a.Expr), strconv.FormatFloat(a.Quantile, 'f', -1, 64)}
	case OpCustom:
		args = []string{strconv.Quote(a.Custom)}
	case OpMatch, OpExtract:
		args = []string{strconv.Quote(a.Pattern)}
	case OpSubstr:
		args = []string{strconv.Itoa(a.Position), strconv.Itoa(a.Length)}
	case OpTimeFloor, OpTimeBucket:
		args = []string{a.Duration.String(), strconv.Quote(tzName(a.Timezone))}
	case OpTimeShift:
		args = []string{a.Duration.String(), strconv.Itoa(a.Step), strconv.Quote(tzName(a.Timezone))}
	case OpTimePart:
		args = []string{strconv.Quote(a.Part), strconv.Quote(tzName(a.Timezone))}
	case OpNumberBucket:
		args = []string{strconv.FormatFloat(a.Size, 'f', -1, 64), strconv.FormatFloat(a.Offset, 'f', -1, 64)}
	default:
		if a.Expr != nil {
			args = []string{a.Expr.String()}
		}
	}
	return name + "(" + strings.Join(args, ",") + ")"
}

func exprString(e Expression) string {
	if e == nil {
		return "?"
	}
	return e.String()
}

func tzName(tz string) string {
	if tz == "" {
		return "Etc/UTC"
	}
	return tz
}
