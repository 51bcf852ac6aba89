package strategy

import (
	"regexp"
	"strings"
)

var (
	eqLiteralPattern = regexp.MustCompile(
		`^\s*([a-zA-Z_][\w.$]*)\s*==\s*("(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*'|[A-Z_][A-Z0-9_]*|-?[0-9]+)\s*$`)
	instanceOfPattern = regexp.MustCompile(
		`^\s*([a-zA-Z_][\w.$]*)\s+instanceof\s+([a-zA-Z_][\w.$]*)\s*$`)
)

// From classifies a raw condition. Blank input becomes an always-true
// passthrough. Classification is deterministic and never fails.
func From(condition string) Strategy {
	if strings.TrimSpace(condition) == "" {
		return OriginalExpression{Raw: "true"}
	}
	trimmed := strings.TrimSpace(condition)

	if op, parts, ok := splitTopLevel(trimmed); ok {
		children := make([]Strategy, 0, len(parts))
		for _, part := range parts {
			child := From(part)
			if _, opaque := child.(OriginalExpression); opaque {
				return OriginalExpression{Raw: condition}
			}
			children = append(children, child)
		}
		return BooleanComposite{Op: op, Children: children}
	}

	normalized := stripEnclosingParens(trimmed)
	if m := eqLiteralPattern.FindStringSubmatch(normalized); m != nil {
		return EqualsLiteral{Left: m[1], Value: m[2]}
	}
	if m := instanceOfPattern.FindStringSubmatch(normalized); m != nil {
		return InstanceOf{Expr: m[1], TypeName: m[2]}
	}
	return OriginalExpression{Raw: condition}
}

// splitTopLevel splits on top-level && if any exist, otherwise on top-level
// ||. Never both in the same call; nesting handles mixed precedence.
func splitTopLevel(s string) (Op, []string, bool) {
	var ands, ors []int
	depth := 0
	for i := 0; i < len(s)-1; i++ {
		switch c := s[i]; {
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case depth == 0 && c == '&' && s[i+1] == '&':
			ands = append(ands, i)
		case depth == 0 && c == '|' && s[i+1] == '|':
			ors = append(ors, i)
		}
	}

	op, idx := OpAnd, ands
	if len(ands) == 0 {
		op, idx = OpOr, ors
	}
	if len(idx) == 0 {
		return op, nil, false
	}

	parts := make([]string, 0, len(idx)+1)
	last := 0
	for _, i := range idx {
		parts = append(parts, strings.TrimSpace(s[last:i]))
		last = i + 2
	}
	parts = append(parts, strings.TrimSpace(s[last:]))
	return op, parts, true
}

// stripEnclosingParens removes outer parentheses for as long as they wrap
// the entire expression as one balanced group.
func stripEnclosingParens(s string) string {
	current := s
	for len(current) >= 2 && current[0] == '(' && current[len(current)-1] == ')' {
		if !wrapsWhole(current) {
			break
		}
		current = strings.TrimSpace(current[1 : len(current)-1])
	}
	if current == "" {
		return strings.TrimSpace(s)
	}
	return current
}

func wrapsWhole(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 || (depth == 0 && i < len(s)-1) {
				return false
			}
		}
	}
	return depth == 0
}
