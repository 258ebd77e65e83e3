package expr

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// Node is the JSON interchange form of an expression.
//
//	{"op":"literal","type":"NUMBER","value":5}
//	{"op":"ref","name":"price","nest":0}
//	{"op":"chain","expression":{...},"actions":[{"action":"sum","expression":{...}}]}
//
// Remote sources marshal as {"op":"external","source":"..."} for
// inspection only; they cannot be decoded.
type Node struct {
	Op         string          `json:"op"`
	Type       ir.Type         `json:"type,omitempty"`
	Value      json.RawMessage `json:"value,omitempty"`
	Name       string          `json:"name,omitempty"`
	Nest       int             `json:"nest,omitempty"`
	Expression *Node           `json:"expression,omitempty"`
	Actions    []ActionNode    `json:"actions,omitempty"`
	Source     string          `json:"source,omitempty"`
}

// ActionNode is the JSON form of an Action.
type ActionNode struct {
	Action     string         `json:"action"`
	Expression *Node          `json:"expression,omitempty"`
	Name       string         `json:"name,omitempty"`
	Splits     []SplitKeyNode `json:"splits,omitempty"`
	DataName   string         `json:"dataName,omitempty"`
	Direction  ir.Direction   `json:"direction,omitempty"`
	Limit      *int           `json:"limit,omitempty"`
	Names      []string       `json:"names,omitempty"`
	Quantile   *float64       `json:"quantile,omitempty"`
	Custom     string         `json:"custom,omitempty"`
	Pattern    string         `json:"pattern,omitempty"`
	Position   int            `json:"position,omitempty"`
	Length     int            `json:"length,omitempty"`
	Duration   string         `json:"duration,omitempty"`
	Step       int            `json:"step,omitempty"`
	Timezone   string         `json:"timezone,omitempty"`
	Part       string         `json:"part,omitempty"`
	Size       float64        `json:"size,omitempty"`
	Offset     float64        `json:"offset,omitempty"`
}

// SplitKeyNode is one key of a split in JSON form.
type SplitKeyNode struct {
	Name       string `json:"name"`
	Expression *Node  `json:"expression"`
}

// ToNode converts e to its interchange form.
func ToNode(e Expression) *Node {
	switch x := e.(type) {
	case *Literal:
		// Non-finite numbers have no JSON form and encode as null.
		raw, err := json.Marshal(ir.ToNative(x.Value))
		if err != nil {
			raw = json.RawMessage("null")
		}
		return &Node{Op: "literal", Type: x.Type(), Value: raw}
	case *Ref:
		return &Node{Op: "ref", Name: x.Name, Nest: x.Nest, Type: x.T}
	case *ExternalExpr:
		return &Node{Op: "external", Type: x.Type(), Source: x.Source.String()}
	case *Chain:
		n := &Node{Op: "chain", Expression: ToNode(x.Base)}
		for _, a := range x.Actions {
			n.Actions = append(n.Actions, actionNode(a))
		}
		return n
	}
	return nil
}

func actionNode(a Action) ActionNode {
	n := ActionNode{
		Action:    a.Op.String(),
		Name:      a.Name,
		DataName:  a.DataName,
		Direction: a.Direction,
		Names:     a.Names,
		Custom:    a.Custom,
		Pattern:   a.Pattern,
		Position:  a.Position,
		Length:    a.Length,
		Step:      a.Step,
		Timezone:  a.Timezone,
		Part:      a.Part,
		Size:      a.Size,
		Offset:    a.Offset,
	}
	if a.Expr != nil {
		n.Expression = ToNode(a.Expr)
	}
	for _, k := range a.Splits {
		n.Splits = append(n.Splits, SplitKeyNode{Name: k.Name, Expression: ToNode(k.Expr)})
	}
	switch a.Op {
	case OpLimit:
		n.Limit = &a.Limit
	case OpQuantile:
		n.Quantile = &a.Quantile
	case OpTimeFloor, OpTimeBucket, OpTimeShift:
		n.Duration = a.Duration.String()
	}
	return n
}

// MarshalJSON encodes e in the interchange form.
func MarshalJSON(e Expression) ([]byte, error) {
	return json.Marshal(ToNode(e))
}

// FromJSON decodes an expression from its interchange form. Chains are
// rebuilt through NewChain, so a decoded tree is type-checked as far as its
// references allow.
func FromJSON(data []byte) (Expression, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("decode expression: %w", err)
	}
	return FromNode(&n)
}

// FromNode converts an interchange node back into an expression.
func FromNode(n *Node) (Expression, error) {
	if n == nil {
		return nil, fmt.Errorf("missing expression")
	}
	switch n.Op {
	case "literal":
		v, err := literalValue(n.Type, n.Value)
		if err != nil {
			return nil, fmt.Errorf("literal: %w", err)
		}
		return NewLiteral(v), nil
	case "ref":
		if n.Name == "" {
			return nil, fmt.Errorf("ref: missing name")
		}
		if n.Nest < 0 {
			return nil, fmt.Errorf("ref %q: negative nest", n.Name)
		}
		return &Ref{Name: n.Name, Nest: n.Nest, T: n.Type}, nil
	case "chain":
		base, err := FromNode(n.Expression)
		if err != nil {
			return nil, err
		}
		actions := make([]Action, 0, len(n.Actions))
		for i := range n.Actions {
			a, err := fromActionNode(&n.Actions[i])
			if err != nil {
				return nil, fmt.Errorf("action %d: %w", i, err)
			}
			actions = append(actions, a)
		}
		return NewChain(base, actions...)
	case "external":
		return nil, fmt.Errorf("external sources cannot be decoded; bind them by name instead")
	}
	return nil, fmt.Errorf("unknown node op %q", n.Op)
}

func literalValue(t ir.Type, raw json.RawMessage) (ir.Value, error) {
	var x any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &x); err != nil {
			return nil, err
		}
	}
	if t.Known() {
		if !t.Valid() {
			return nil, fmt.Errorf("invalid type %q", t)
		}
		return ir.ParseValue(t, x)
	}
	return ir.FromNative(x)
}

func fromActionNode(n *ActionNode) (Action, error) {
	op, err := ParseOp(n.Action)
	if err != nil {
		return Action{}, err
	}
	a := Action{
		Op:        op,
		Name:      n.Name,
		DataName:  n.DataName,
		Direction: n.Direction,
		Names:     n.Names,
		Custom:    n.Custom,
		Pattern:   n.Pattern,
		Position:  n.Position,
		Length:    n.Length,
		Step:      n.Step,
		Timezone:  n.Timezone,
		Part:      n.Part,
		Size:      n.Size,
		Offset:    n.Offset,
	}
	if n.Expression != nil {
		if a.Expr, err = FromNode(n.Expression); err != nil {
			return Action{}, err
		}
	}
	for _, k := range n.Splits {
		e, err := FromNode(k.Expression)
		if err != nil {
			return Action{}, fmt.Errorf("split key %q: %w", k.Name, err)
		}
		a.Splits = append(a.Splits, SplitKey{Name: k.Name, Expr: e})
	}
	if n.Limit != nil {
		a.Limit = *n.Limit
	}
	if n.Quantile != nil {
		a.Quantile = *n.Quantile
	}
	if op == OpSort && a.Direction == "" {
		a.Direction = ir.Ascending
	}
	if n.Duration != "" {
		if a.Duration, err = ir.ParseDuration(n.Duration); err != nil {
			return Action{}, err
		}
	}
	return a, nil
}
