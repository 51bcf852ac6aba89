// Package render turns scan events into Byteman rule blocks.
//
// Every block follows the same keyword layout:
//
//	RULE <name>
//	CLASS <fqcn>
//	METHOD <method>(..)
//	HELPER <helper>
//	AT <ENTRY|EXIT|LINE n>   (AFTER WRITE $v for variable writes)
//	[IF (<guard>)]
//	DO <action>(<args>)
//	ENDRULE
//
// Blocks carry no trailing newline; the writer adds the blank separator line.
package render

import (
	"fmt"
	"strings"

	"github.com/solatis/btmgen/internal/shard"
	"github.com/solatis/btmgen/internal/strategy"
	"github.com/solatis/btmgen/internal/translate"
	"github.com/solatis/btmgen/internal/types"
)

// Options control rule content.
type Options struct {
	HelperFQCN   string
	SafeEvalFQCN string
	SafeMode     bool
	ForceHelper  bool
	EntryExit    bool
	TrackedVars  []string
	// MaxStringLength truncates emitted strings when > 0.
	MaxStringLength int
}

// Rule is one rendered block plus the metadata used for routing and
// filtering.
type Rule struct {
	FQCN     string
	Method   string
	Line     int
	Kind     string
	ShardKey string
	// Branch marks if, when and case rules for the per-method minimum.
	Branch bool
	Text   string
}

// MethodKey groups rules of one method across overloads.
func (r Rule) MethodKey() string {
	return r.FQCN + "." + r.Method
}

// Registration describes an opaque condition routed through the keyed
// predicate lookup.
type Registration struct {
	RuleID     string
	FQCN       string
	Method     string
	Line       int
	Condition  string
	HelperExpr string
}

// Renderer holds per-run state: which methods already got entry and exit
// rules, and which Kotlin methods already have a when selector.
type Renderer struct {
	opts     Options
	tracked  map[string]bool
	entered  map[string]bool
	switched map[string]bool
	regs     []Registration
	regSeen  map[string]bool
}

// New returns a Renderer for one generation run.
func New(opts Options) *Renderer {
	if opts.HelperFQCN == "" {
		opts.HelperFQCN = types.DefaultHelperFQCN
	}
	if opts.SafeEvalFQCN == "" {
		opts.SafeEvalFQCN = types.DefaultSafeEvalFQCN
	}
	tracked := make(map[string]bool, len(opts.TrackedVars))
	for _, v := range opts.TrackedVars {
		tracked[v] = true
	}
	return &Renderer{
		opts:     opts,
		tracked:  tracked,
		entered:  map[string]bool{},
		switched: map[string]bool{},
		regSeen:  map[string]bool{},
	}
}

// Registrations returns the opaque conditions seen so far, one per rule ID.
func (r *Renderer) Registrations() []Registration {
	out := make([]Registration, len(r.regs))
	copy(out, r.regs)
	return out
}

// RenderAll renders events in the order given. Callers sort first.
func (r *Renderer) RenderAll(events []types.ScanEvent) []Rule {
	for _, e := range events {
		if e.Language == types.LanguageKotlin && e.Kind == types.KindSwitch {
			r.switched[e.MethodKey()] = true
		}
	}
	var rules []Rule
	for _, e := range events {
		rules = append(rules, r.Render(e)...)
	}
	return rules
}

// Render returns the rules for one event. The first event of a method also
// yields its entry and exit rules when enabled, and the first when-branch
// of a Kotlin method without a selector yields a synthetic one.
func (r *Renderer) Render(e types.ScanEvent) []Rule {
	if e.Line < 0 {
		return nil
	}
	var rules []Rule
	key := e.MethodKey()
	if r.opts.EntryExit && !r.entered[key] {
		r.entered[key] = true
		rules = append(rules, r.entryExit(e, "enter", "ENTRY"), r.entryExit(e, "exit", "EXIT"))
	}
	if e.Language == types.LanguageKotlin && e.Kind == types.KindWhenBranch && !r.switched[key] {
		r.switched[key] = true
		synthetic := e
		synthetic.Kind = types.KindSwitch
		synthetic.Condition = nil
		rules = append(rules, r.switchRule(synthetic))
	}

	switch e.Kind {
	case types.KindIfTrue:
		rules = append(rules, r.ifRule(e, true))
	case types.KindIfFalse:
		rules = append(rules, r.ifRule(e, false))
	case types.KindSwitch:
		rules = append(rules, r.switchRule(e))
	case types.KindSwitchCase, types.KindWhenBranch:
		rules = append(rules, r.caseRule(e))
	case types.KindWrite:
		if name := e.Text(""); name != "" && r.tracked[name] {
			rules = append(rules, r.writeRule(e, name))
		}
	}
	return rules
}

func (r *Renderer) header(name, fqcn, method string) []string {
	return []string{
		"RULE " + name,
		"CLASS " + fqcn,
		"METHOD " + method + "(..)",
		"HELPER " + r.opts.HelperFQCN,
	}
}

func (r *Renderer) entryExit(e types.ScanEvent, action, at string) Rule {
	lines := append(r.header(action+"@"+e.TypeName+"."+e.Method, e.TypeName, e.Method),
		"AT "+at,
		fmt.Sprintf(`DO %s("%s","%s", $LINE)`, action, e.TypeName, e.Method),
		"ENDRULE")
	return Rule{
		FQCN:     e.TypeName,
		Method:   e.Method,
		Line:     e.Line,
		Kind:     action,
		ShardKey: shard.Key(e.TypeName, e.Method, 0),
		Text:     strings.Join(lines, "\n"),
	}
}

func (r *Renderer) ifRule(e types.ScanEvent, positive bool) Rule {
	cond := e.Text("true")
	ruleID := shard.StableRuleID(e.TypeName, e.Method, e.Line, cond)
	guard := strategy.Decorate(strategy.From(cond), strategy.Policy{
		SafeMode:    r.opts.SafeMode,
		ForceHelper: r.opts.ForceHelper,
		HelperFQCN:  r.opts.SafeEvalFQCN,
		RuleID:      ruleID,
	})
	rendered := guard.Literal()

	kind := "if-false"
	check := "IF (!(" + rendered + "))"
	if positive {
		kind = "if-true"
		check = "IF (" + rendered + ")"
	}

	lines := append(r.lineHeader(e, kind), check)
	if guard.Opaque() {
		lines = append(lines, r.registration(e, ruleID, cond)...)
	}
	lines = append(lines,
		fmt.Sprintf(`DO iff("%s","%s",%d,"%s", %t)`, e.TypeName, e.Method, e.Line, r.escape(cond), positive),
		"ENDRULE")
	return r.lineRule(e, kind, lines)
}

// registration emits the predicate registration block and records the
// condition for the predicate manifest.
func (r *Renderer) registration(e types.ScanEvent, ruleID, cond string) []string {
	h := r.opts.SafeEvalFQCN
	body := translate.ToHelperExpr(cond, h)
	if !r.regSeen[ruleID] {
		r.regSeen[ruleID] = true
		r.regs = append(r.regs, Registration{
			RuleID:     ruleID,
			FQCN:       e.TypeName,
			Method:     e.Method,
			Line:       e.Line,
			Condition:  cond,
			HelperExpr: body,
		})
	}
	return []string{
		fmt.Sprintf(`DO %s.register("%s", new %s.Evaluator() {`, h, ruleID, h),
		"    public boolean eval() {",
		"        return " + body + ";",
		"    }",
		"});",
	}
}

func (r *Renderer) switchRule(e types.ScanEvent) Rule {
	selector := e.Text("")
	if e.Language == types.LanguageKotlin && strings.TrimSpace(selector) == "" {
		selector = "when { … }"
	}
	lines := append(r.lineHeader(e, "when"),
		fmt.Sprintf(`DO sw("%s","%s",%d,"%s")`, e.TypeName, e.Method, e.Line, r.escape(selector)),
		"ENDRULE")
	return r.lineRule(e, "when", lines)
}

func (r *Renderer) caseRule(e types.ScanEvent) Rule {
	fallback := "default"
	if e.Language == types.LanguageKotlin {
		fallback = "else"
	}
	lines := append(r.lineHeader(e, "case"),
		fmt.Sprintf(`DO kase("%s","%s",%d,"%s")`, e.TypeName, e.Method, e.Line, r.escape(e.Text(fallback))),
		"ENDRULE")
	return r.lineRule(e, "case", lines)
}

func (r *Renderer) writeRule(e types.ScanEvent, name string) Rule {
	kind := "write-" + name
	lines := append(r.header(fmt.Sprintf("%s.%s:%d:%s", e.TypeName, e.Method, e.Line, kind), e.TypeName, e.Method),
		"AFTER WRITE $"+name,
		fmt.Sprintf(`DO writeVar("%s","%s",%d,"%s", $%s)`, e.TypeName, e.Method, e.Line, r.escape(name), name),
		"ENDRULE")
	return Rule{
		FQCN:     e.TypeName,
		Method:   e.Method,
		Line:     e.Line,
		Kind:     kind,
		ShardKey: shard.Key(e.TypeName, e.Method, 0),
		Text:     strings.Join(lines, "\n"),
	}
}

func (r *Renderer) lineHeader(e types.ScanEvent, kind string) []string {
	name := fmt.Sprintf("%s.%s:%d:%s", e.TypeName, e.Method, e.Line, kind)
	return append(r.header(name, e.TypeName, e.Method), fmt.Sprintf("AT LINE %d", e.Line))
}

func (r *Renderer) lineRule(e types.ScanEvent, kind string, lines []string) Rule {
	return Rule{
		FQCN:     e.TypeName,
		Method:   e.Method,
		Line:     e.Line,
		Kind:     kind,
		ShardKey: shard.Key(e.TypeName, e.Method, e.Line),
		Branch:   true,
		Text:     strings.Join(lines, "\n"),
	}
}

func (r *Renderer) escape(value string) string {
	return Escape(value, r.opts.MaxStringLength)
}

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// Escape truncates value to limit runes when limit > 0, appending the
// truncation marker, then escapes it for a double-quoted rule string.
func Escape(value string, limit int) string {
	if limit > 0 {
		runes := []rune(value)
		if len(runes) > limit {
			value = string(runes[:limit]) + types.TruncationMarker
		}
	}
	return escaper.Replace(value)
}
