package strategy

// Policy controls how a strategy is rendered into a rule guard.
type Policy struct {
	// SafeMode forbids embedding unvetted expression text in the script.
	SafeMode bool
	// ForceHelper renders inline-safe forms through the helper as well.
	ForceHelper bool
	// HelperFQCN is the guard helper class, e.g. org.example.trace.SafeEval.
	HelperFQCN string
	// RuleID keys the predicate lookup for opaque conditions.
	RuleID string
}

// Render produces the guard expression for s under p.
//
// With safe mode off the literal form is always used. With safe mode on,
// inline-safe forms stay literal unless ForceHelper is set, and opaque
// forms collapse to a single keyed ifMatch call.
func Render(s Strategy, p Policy) string {
	if !p.SafeMode {
		return s.Literal()
	}
	if s.InlineSafe() {
		if p.ForceHelper {
			return s.Helper(p.HelperFQCN, p.RuleID)
		}
		return s.Literal()
	}
	return IfMatchCall(p.HelperFQCN, p.RuleID)
}

// Decorated binds a strategy to a policy so it can be passed around as a
// Strategy itself.
type Decorated struct {
	Inner  Strategy
	Policy Policy
}

// Decorate wraps s with p.
func Decorate(s Strategy, p Policy) Decorated {
	return Decorated{Inner: s, Policy: p}
}

func (d Decorated) Literal() string {
	return Render(d.Inner, d.Policy)
}

func (d Decorated) Helper(helperFQCN, ruleID string) string {
	return d.Inner.Helper(helperFQCN, ruleID)
}

func (d Decorated) InlineSafe() bool {
	return d.Inner.InlineSafe()
}

// Opaque reports whether the rendered guard is the keyed predicate lookup,
// meaning the rule needs a predicate registration alongside it.
func (d Decorated) Opaque() bool {
	return d.Policy.SafeMode && !d.Inner.InlineSafe()
}
