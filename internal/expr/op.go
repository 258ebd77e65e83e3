package expr

import (
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Op identifies the kind of an Action. The set is closed: every switch over
// Op in this module is exhaustive.
type Op int

const (
	OpInvalid Op = iota

	// Dataset operations: DATASET in, DATASET out.
	OpFilter
	OpApply
	OpSplit
	OpSort
	OpLimit
	OpSelect
	OpJoin

	// Aggregates: DATASET in, scalar out.
	OpCount
	OpSum
	OpMin
	OpMax
	OpAverage
	OpCountDistinct
	OpQuantile
	OpCustom
	OpGroup

	// Comparison and logic.
	OpIs
	OpLessThan
	OpLessThanOrEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpIn
	OpAnd
	OpOr
	OpNot

	// Arithmetic.
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpAbsolute
	OpPower

	// Strings.
	OpConcat
	OpContains
	OpMatch
	OpSubstr
	OpExtract
	OpLength
	OpFallback

	// Time and bucketing.
	OpTimeFloor
	OpTimeBucket
	OpTimePart
	OpTimeShift
	OpNumberBucket

	// Sets.
	OpCardinality

	opCount
)

// kind classifies how an operation transforms its input.
type kind int

const (
	kindDataset kind = iota
	kindAggregate
	kindScalar
)

// operandMode says where an action's operand expression is evaluated.
type operandMode int

const (
	// operandNone: the action takes no operand expression.
	operandNone operandMode = iota
	// operandRow: evaluated once per row, in a frame pushed for the rows.
	operandRow
	// operandValue: evaluated once, in the ambient scope of the chain.
	operandValue
)

// signature is the static description of one operation.
type signature struct {
	name    string
	kind    kind
	operand operandMode
	// output computes the result type from the input and operand types.
	// ok is false when the types are not accepted. Unknown types are
	// accepted; the check is repeated once references are resolved.
	output func(in, arg ir.Type) (out ir.Type, ok bool)
}

var signatures = [opCount]signature{
	OpFilter: {"filter", kindDataset, operandRow, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in) && accepts(arg, ir.TypeBoolean)
	}},
	OpApply: {"apply", kindDataset, operandRow, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in)
	}},
	OpSplit: {"split", kindDataset, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in)
	}},
	OpSort: {"sort", kindDataset, operandRow, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in) && arg != ir.TypeDataset
	}},
	OpLimit: {"limit", kindDataset, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in)
	}},
	OpSelect: {"select", kindDataset, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in)
	}},
	// join merges the split result in its operand on the shared keys.
	OpJoin: {"join", kindDataset, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeDataset, isDataset(in) && isDataset(arg)
	}},

	OpCount: {"count", kindAggregate, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, isDataset(in)
	}},
	OpSum:     {"sum", kindAggregate, operandRow, numericAggregate},
	OpAverage: {"average", kindAggregate, operandRow, numericAggregate},
	OpMin:     {"min", kindAggregate, operandRow, orderedAggregate},
	OpMax:     {"max", kindAggregate, operandRow, orderedAggregate},
	OpCountDistinct: {"countDistinct", kindAggregate, operandRow, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, isDataset(in) && arg != ir.TypeDataset
	}},
	OpQuantile: {"quantile", kindAggregate, operandRow, numericAggregate},
	OpCustom: {"custom", kindAggregate, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, isDataset(in)
	}},
	// group is a split that keeps only the labels, as a set.
	OpGroup: {"group", kindAggregate, operandRow, func(in, arg ir.Type) (ir.Type, bool) {
		if !arg.Known() || arg == ir.TypeNull {
			return ir.TypeUnknown, isDataset(in)
		}
		return ir.SetOf(arg), isDataset(in) && arg != ir.TypeDataset
	}},

	OpIs: {"is", kindScalar, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		_, ok := ir.Unify(in, arg)
		return ir.TypeBoolean, ok && in != ir.TypeDataset
	}},
	OpLessThan:           {"lessThan", kindScalar, operandValue, comparison},
	OpLessThanOrEqual:    {"lessThanOrEqual", kindScalar, operandValue, comparison},
	OpGreaterThan:        {"greaterThan", kindScalar, operandValue, comparison},
	OpGreaterThanOrEqual: {"greaterThanOrEqual", kindScalar, operandValue, comparison},
	OpIn: {"in", kindScalar, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeBoolean, inAccepts(in, arg)
	}},
	OpAnd: {"and", kindScalar, operandValue, logical},
	OpOr:  {"or", kindScalar, operandValue, logical},
	OpNot: {"not", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeBoolean, accepts(in, ir.TypeBoolean)
	}},

	OpAdd:      {"add", kindScalar, operandValue, arithmetic},
	OpSubtract: {"subtract", kindScalar, operandValue, arithmetic},
	OpMultiply: {"multiply", kindScalar, operandValue, arithmetic},
	OpDivide:   {"divide", kindScalar, operandValue, arithmetic},
	OpPower:    {"power", kindScalar, operandValue, arithmetic},
	OpAbsolute: {"absolute", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, accepts(in, ir.TypeNumber)
	}},

	OpConcat: {"concat", kindScalar, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeString, accepts(in, ir.TypeString) && accepts(arg, ir.TypeString)
	}},
	OpContains: {"contains", kindScalar, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		return ir.TypeBoolean, accepts(in, ir.TypeString) && accepts(arg, ir.TypeString)
	}},
	OpMatch: {"match", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeBoolean, accepts(in, ir.TypeString)
	}},
	OpSubstr: {"substr", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeString, accepts(in, ir.TypeString)
	}},
	OpExtract: {"extract", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeString, accepts(in, ir.TypeString)
	}},
	OpLength: {"length", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, accepts(in, ir.TypeString)
	}},
	OpFallback: {"fallback", kindScalar, operandValue, func(in, arg ir.Type) (ir.Type, bool) {
		out, ok := ir.Unify(in, arg)
		return out, ok && in != ir.TypeDataset
	}},

	OpTimeFloor: {"timeFloor", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeTime, accepts(in, ir.TypeTime)
	}},
	OpTimeBucket: {"timeBucket", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeTimeRange, accepts(in, ir.TypeTime)
	}},
	OpTimePart: {"timePart", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, accepts(in, ir.TypeTime)
	}},
	OpTimeShift: {"timeShift", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeTime, accepts(in, ir.TypeTime)
	}},
	OpNumberBucket: {"numberBucket", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumberRange, accepts(in, ir.TypeNumber)
	}},

	OpCardinality: {"cardinality", kindScalar, operandNone, func(in, _ ir.Type) (ir.Type, bool) {
		return ir.TypeNumber, !in.Known() || in == ir.TypeNull || in.IsSet()
	}},
}

func isDataset(t ir.Type) bool {
	return !t.Known() || t == ir.TypeDataset
}

// accepts reports whether an operand of type t may be used where one of the
// allowed types is required. Unknown and NULL operands are always accepted.
func accepts(t ir.Type, allowed ...ir.Type) bool {
	return !t.Known() || t == ir.TypeNull || t.In(allowed...)
}

func numericAggregate(in, arg ir.Type) (ir.Type, bool) {
	return ir.TypeNumber, isDataset(in) && accepts(arg, ir.TypeNumber)
}

func orderedAggregate(in, arg ir.Type) (ir.Type, bool) {
	out := arg
	if out == ir.TypeNull {
		out = ir.TypeNumber
	}
	return out, isDataset(in) && accepts(arg, ir.TypeNumber, ir.TypeTime)
}

func comparison(in, arg ir.Type) (ir.Type, bool) {
	if !accepts(in, ir.TypeNumber, ir.TypeTime, ir.TypeString) {
		return ir.TypeBoolean, false
	}
	_, ok := ir.Unify(in, arg)
	return ir.TypeBoolean, ok
}

func logical(in, arg ir.Type) (ir.Type, bool) {
	return ir.TypeBoolean, accepts(in, ir.TypeBoolean) && accepts(arg, ir.TypeBoolean)
}

func arithmetic(in, arg ir.Type) (ir.Type, bool) {
	return ir.TypeNumber, accepts(in, ir.TypeNumber) && accepts(arg, ir.TypeNumber)
}

// inAccepts checks x.in(set): the operand must be a set of, a range over, or
// a set of ranges over the input type.
func inAccepts(in, arg ir.Type) bool {
	if !in.Known() || !arg.Known() || arg == ir.TypeNull {
		return true
	}
	if in == ir.TypeDataset || in.IsSet() || in.IsRange() {
		return false
	}
	elem := arg.Elem()
	if in == ir.TypeNull {
		return arg.IsSet() || arg.IsRange()
	}
	return elem == in || (elem.IsRange() && elem.Unrange() == in)
}

func (o Op) sig() signature {
	if o <= OpInvalid || o >= opCount {
		return signature{name: fmt.Sprintf("op(%d)", int(o))}
	}
	return signatures[o]
}

// String returns the operation name as used in the canonical form.
func (o Op) String() string {
	return o.sig().name
}

// IsAggregate reports whether the operation reduces a dataset to a scalar.
func (o Op) IsAggregate() bool {
	return o > OpInvalid && o < opCount && signatures[o].kind == kindAggregate
}

// IsDatasetOp reports whether the operation maps a dataset to a dataset.
func (o Op) IsDatasetOp() bool {
	return o > OpInvalid && o < opCount && signatures[o].kind == kindDataset
}

// RowOperand reports whether the operand is evaluated once per input row.
func (o Op) RowOperand() bool {
	return o > OpInvalid && o < opCount && signatures[o].operand == operandRow
}

// ParseOp returns the operation with the given canonical name.
func ParseOp(name string) (Op, error) {
	for o := OpInvalid + 1; o < opCount; o++ {
		if signatures[o].name == name {
			return o, nil
		}
	}
	return OpInvalid, fmt.Errorf("unknown operation %q", name)
}
