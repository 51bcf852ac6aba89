package strategy

import (
	"strings"
	"testing"
)

const helper = "org.example.trace.SafeEval"

func TestFrom_Classification(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Strategy
		literal string
	}{
		{
			name:    "equals string literal",
			in:      `user.status == "OK"`,
			want:    EqualsLiteral{Left: "user.status", Value: `"OK"`},
			literal: `user.status == "OK"`,
		},
		{
			name:    "equals enum constant",
			in:      "state == RUNNING",
			want:    EqualsLiteral{Left: "state", Value: "RUNNING"},
			literal: "state == RUNNING",
		},
		{
			name:    "equals negative integer",
			in:      "delta == -5",
			want:    EqualsLiteral{Left: "delta", Value: "-5"},
			literal: "delta == -5",
		},
		{
			name:    "equals char literal",
			in:      "c == 'Y'",
			want:    EqualsLiteral{Left: "c", Value: "'Y'"},
			literal: "c == 'Y'",
		},
		{
			name:    "instanceof qualified type",
			in:      "obj instanceof com.acme.Type",
			want:    InstanceOf{Expr: "obj", TypeName: "com.acme.Type"},
			literal: "obj instanceof com.acme.Type",
		},
		{
			name:    "enclosing parentheses stripped",
			in:      "((a == 1))",
			want:    EqualsLiteral{Left: "a", Value: "1"},
			literal: "a == 1",
		},
		{
			name:    "non-enclosing parentheses kept",
			in:      "(a) == (b)",
			want:    OriginalExpression{Raw: "(a) == (b)"},
			literal: "(a) == (b)",
		},
		{
			name:    "function call falls back",
			in:      `x != null && x.equals("OK")`,
			want:    OriginalExpression{Raw: `x != null && x.equals("OK")`},
			literal: `x != null && x.equals("OK")`,
		},
		{
			name:    "blank is true",
			in:      "   ",
			want:    OriginalExpression{Raw: "true"},
			literal: "true",
		},
		{
			name:    "relational falls back",
			in:      "x > 0 && x < 10",
			want:    OriginalExpression{Raw: "x > 0 && x < 10"},
			literal: "x > 0 && x < 10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := From(tt.in)
			if got != tt.want {
				t.Errorf("From(%q) = %#v, want %#v", tt.in, got, tt.want)
			}
			if lit := got.Literal(); lit != tt.literal {
				t.Errorf("Literal() = %q, want %q", lit, tt.literal)
			}
		})
	}
}

func TestFrom_CompositeAndOr(t *testing.T) {
	s := From("(a == 1) && (b instanceof X) || (c == 'Y')")
	comp, ok := s.(BooleanComposite)
	if !ok {
		t.Fatalf("expected BooleanComposite, got %T", s)
	}
	if comp.Op != OpAnd {
		t.Errorf("AND must take precedence at top level, got %v", comp.Op)
	}
	lit := s.Literal()
	if lit != "(a == 1) AND ((b instanceof X) OR (c == 'Y'))" {
		t.Errorf("Literal() = %q", lit)
	}
}

func TestFrom_AnyOpaqueChildMakesWholeOpaque(t *testing.T) {
	raw := `a == 1 && f(b)`
	s := From(raw)
	if _, ok := s.(OriginalExpression); !ok {
		t.Fatalf("expected OriginalExpression, got %T", s)
	}
	if s.Literal() != raw {
		t.Errorf("Literal() = %q, want raw text", s.Literal())
	}
}

func TestRendering_LiteralAndHelper(t *testing.T) {
	eq := EqualsLiteral{Left: "a", Value: "1"}
	if got := eq.Literal(); got != "a == 1" {
		t.Errorf("literal = %q", got)
	}
	if got := eq.Helper("H", "rid"); got != "H.ifEq(a, 1)" {
		t.Errorf("helper = %q", got)
	}

	io := InstanceOf{Expr: "obj", TypeName: "MyType"}
	if got := io.Helper("H", "rid"); got != `H.ifInstanceOf(obj, "MyType")` {
		t.Errorf("helper = %q", got)
	}

	orig := OriginalExpression{Raw: "x.y()"}
	if got := orig.Helper("H", "abc"); got != `H.ifMatch("abc")` {
		t.Errorf("helper = %q", got)
	}
}

func TestComposite_LeftAssociative(t *testing.T) {
	a := EqualsLiteral{Left: "a", Value: "1"}
	b := EqualsLiteral{Left: "b", Value: "2"}
	c := EqualsLiteral{Left: "c", Value: "3"}

	nested := BooleanComposite{Op: OpOr, Children: []Strategy{
		BooleanComposite{Op: OpAnd, Children: []Strategy{a, b}},
		c,
	}}
	if got := nested.Literal(); got != "((a == 1) AND (b == 2)) OR (c == 3)" {
		t.Errorf("nested literal = %q", got)
	}

	flat := BooleanComposite{Op: OpAnd, Children: []Strategy{a, b, c}}
	if got := flat.Literal(); got != "((a == 1) AND (b == 2)) AND (c == 3)" {
		t.Errorf("flat literal = %q", got)
	}
	if got := flat.Helper("H", "r"); got != "H.and(H.and(H.ifEq(a, 1), H.ifEq(b, 2)), H.ifEq(c, 3))" {
		t.Errorf("flat helper = %q", got)
	}

	empty := BooleanComposite{Op: OpAnd}
	if empty.Literal() != "true" || empty.Helper("H", "r") != "true" {
		t.Errorf("empty composite must render true")
	}
}

func TestRender_SafeModeDecorator(t *testing.T) {
	opaque := OriginalExpression{Raw: `x != null && x.equals("OK")`}
	eq := EqualsLiteral{Left: "user.status", Value: `"OK"`}
	io := InstanceOf{Expr: "obj", TypeName: "MyType"}
	comp := BooleanComposite{Op: OpAnd, Children: []Strategy{
		eq,
		EqualsLiteral{Left: "user.role", Value: `"ADMIN"`},
	}}

	tests := []struct {
		name   string
		s      Strategy
		policy Policy
		want   string
	}{
		{
			name:   "safe mode off passes opaque through",
			s:      opaque,
			policy: Policy{HelperFQCN: helper, RuleID: "abc"},
			want:   `x != null && x.equals("OK")`,
		},
		{
			name:   "equals stays inline",
			s:      eq,
			policy: Policy{SafeMode: true, HelperFQCN: helper, RuleID: "rid1"},
			want:   `user.status == "OK"`,
		},
		{
			name:   "instanceof stays inline",
			s:      io,
			policy: Policy{SafeMode: true, HelperFQCN: helper, RuleID: "rid2"},
			want:   "obj instanceof MyType",
		},
		{
			name:   "composite stays inline",
			s:      comp,
			policy: Policy{SafeMode: true, HelperFQCN: helper, RuleID: "rid3"},
			want:   `(user.status == "OK") AND (user.role == "ADMIN")`,
		},
		{
			name:   "opaque routed through keyed helper",
			s:      opaque,
			policy: Policy{SafeMode: true, HelperFQCN: helper, RuleID: "deadbeef"},
			want:   helper + `.ifMatch("deadbeef")`,
		},
		{
			name:   "forced helper for whitelisted form",
			s:      eq,
			policy: Policy{SafeMode: true, ForceHelper: true, HelperFQCN: helper, RuleID: "rid4"},
			want:   helper + `.ifEq(user.status, "OK")`,
		},
		{
			name:   "force helper ignored when safe mode off",
			s:      eq,
			policy: Policy{ForceHelper: true, HelperFQCN: helper, RuleID: "rid5"},
			want:   `user.status == "OK"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Render(tt.s, tt.policy); got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
			if got := Decorate(tt.s, tt.policy).Literal(); got != tt.want {
				t.Errorf("Decorate().Literal() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_CompositeWithOpaqueDescendantIsOpaque(t *testing.T) {
	comp := BooleanComposite{Op: OpOr, Children: []Strategy{
		EqualsLiteral{Left: "a", Value: "1"},
		BooleanComposite{Op: OpAnd, Children: []Strategy{
			InstanceOf{Expr: "b", TypeName: "T"},
			OriginalExpression{Raw: "c.size() > 2"},
		}},
	}}
	got := Render(comp, Policy{SafeMode: true, HelperFQCN: helper, RuleID: "r1"})
	if got != helper+`.ifMatch("r1")` {
		t.Errorf("Render = %q, want keyed helper call", got)
	}
	if strings.Contains(got, "size()") {
		t.Errorf("raw text leaked into safe-mode guard: %q", got)
	}
	if !Decorate(comp, Policy{SafeMode: true}).Opaque() {
		t.Errorf("Opaque() should be true for composite with opaque descendant")
	}
}
