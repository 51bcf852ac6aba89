// Package strategy classifies raw branch conditions into a closed set of
// renderable forms and renders them either inline or through a guard helper.
package strategy

import "strings"

/*
 * Condition strategies.
 *
 * Four variants, closed:
 *   - EqualsLiteral:     left == literal
 *   - InstanceOf:        expr instanceof Type
 *   - BooleanComposite:  AND/OR over ordered children
 *   - OriginalExpression: anything else, passed through verbatim
 *
 * Every variant renders two ways. Literal mode uses the rule language's own
 * operators. Helper mode turns each leaf into a call on the guard helper
 * class, so the generated script evaluates nothing but pure helper calls.
 */

// Strategy is a classified condition.
type Strategy interface {
	// Literal renders using the rule language's operators.
	Literal() string
	// Helper renders as calls on helperFQCN. ruleID keys opaque leaves.
	Helper(helperFQCN, ruleID string) string
	// InlineSafe reports whether Literal output may be embedded in safe mode.
	InlineSafe() bool
}

// Op is a boolean composition operator.
type Op int

const (
	OpAnd Op = iota
	OpOr
)

// String returns the keyword used in literal rendering.
func (o Op) String() string {
	if o == OpOr {
		return "OR"
	}
	return "AND"
}

func (o Op) helperFunc() string {
	if o == OpOr {
		return "or"
	}
	return "and"
}

// EqualsLiteral compares a dotted path against a literal.
type EqualsLiteral struct {
	Left  string
	Value string
}

func (s EqualsLiteral) Literal() string {
	return s.Left + " == " + s.Value
}

func (s EqualsLiteral) Helper(helperFQCN, _ string) string {
	return helperFQCN + ".ifEq(" + s.Left + ", " + s.Value + ")"
}

func (EqualsLiteral) InlineSafe() bool { return true }

// InstanceOf checks a dotted path against a type name.
type InstanceOf struct {
	Expr     string
	TypeName string
}

func (s InstanceOf) Literal() string {
	return s.Expr + " instanceof " + s.TypeName
}

func (s InstanceOf) Helper(helperFQCN, _ string) string {
	return helperFQCN + ".ifInstanceOf(" + s.Expr + ", \"" + s.TypeName + "\")"
}

func (InstanceOf) InlineSafe() bool { return true }

// BooleanComposite joins children with a single operator.
type BooleanComposite struct {
	Op       Op
	Children []Strategy
}

// Literal reduces left to right: (a) AND (b), then ((a) AND (b)) AND (c).
func (s BooleanComposite) Literal() string {
	if len(s.Children) == 0 {
		return "true"
	}
	acc := s.Children[0].Literal()
	for _, child := range s.Children[1:] {
		acc = "(" + acc + ") " + s.Op.String() + " (" + child.Literal() + ")"
	}
	return acc
}

func (s BooleanComposite) Helper(helperFQCN, ruleID string) string {
	if len(s.Children) == 0 {
		return "true"
	}
	acc := s.Children[0].Helper(helperFQCN, ruleID)
	for _, child := range s.Children[1:] {
		acc = helperFQCN + "." + s.Op.helperFunc() + "(" + acc + ", " + child.Helper(helperFQCN, ruleID) + ")"
	}
	return acc
}

// InlineSafe holds only if every descendant is inline-safe; one opaque
// leaf anywhere makes the whole composite opaque.
func (s BooleanComposite) InlineSafe() bool {
	for _, child := range s.Children {
		if !child.InlineSafe() {
			return false
		}
	}
	return true
}

// OriginalExpression passes unrecognised text through unchanged.
type OriginalExpression struct {
	Raw string
}

func (s OriginalExpression) Literal() string {
	return s.Raw
}

func (OriginalExpression) Helper(helperFQCN, ruleID string) string {
	return IfMatchCall(helperFQCN, ruleID)
}

func (OriginalExpression) InlineSafe() bool { return false }

// IfMatchCall renders the keyed predicate lookup used for opaque guards.
func IfMatchCall(helperFQCN, ruleID string) string {
	var sb strings.Builder
	sb.WriteString(helperFQCN)
	sb.WriteString(".ifMatch(\"")
	sb.WriteString(ruleID)
	sb.WriteString("\")")
	return sb.String()
}
