// Package translate turns raw guard conditions into pure helper-call
// expressions, or into the constant true when that cannot be done safely.
package translate

import "strings"

// ToHelperExpr renders expr as calls on helperFQCN. It returns "true" when
// the input does not parse, leaves trailing input, or contains nothing that
// becomes a helper call.
func ToHelperExpr(expr, helperFQCN string) string {
	n, err := Parse(expr)
	if err != nil {
		return "true"
	}
	out := Render(n, helperFQCN)
	if out == "" || !strings.Contains(out, helperFQCN+".") {
		return "true"
	}
	return out
}

// Render writes n in helper form. Bare atoms render as themselves.
func Render(n Node, helperFQCN string) string {
	var sb strings.Builder
	render(&sb, n, helperFQCN)
	return sb.String()
}

func render(sb *strings.Builder, n Node, h string) {
	switch n := n.(type) {
	case Ident:
		sb.WriteString(n.Name)
	case Literal:
		sb.WriteString(n.Text)
	case Compare:
		if n.Negated {
			sb.WriteByte('!')
		}
		sb.WriteString(h)
		sb.WriteString(".ifEq(")
		render(sb, n.Left, h)
		sb.WriteString(", ")
		render(sb, n.Right, h)
		sb.WriteByte(')')
	case InstanceOf:
		sb.WriteString(h)
		sb.WriteString(".ifInstanceOf(")
		render(sb, n.Value, h)
		sb.WriteString(", \"")
		sb.WriteString(n.TypeName)
		sb.WriteString("\")")
	case Logical:
		sb.WriteString(h)
		if n.Op == LogicalOr {
			sb.WriteString(".or(")
		} else {
			sb.WriteString(".and(")
		}
		render(sb, n.Left, h)
		sb.WriteString(", ")
		render(sb, n.Right, h)
		sb.WriteByte(')')
	}
}
