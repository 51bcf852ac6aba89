// internal/safeeval/compile.go
package safeeval

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/btmgen/internal/translate"
	"github.com/solatis/btmgen/internal/types"
)

/*
 * Predicate compilation from translator ASTs.
 *
 * A Program evaluates the same grammar the translator accepts, using the
 * same helper semantics the generated rules call at runtime:
 *   a == b          -> IfEq(a, b)
 *   a != b          -> !IfEq(a, b)
 *   v instanceof T  -> IfInstanceOf(v, T)
 *   x && y, x || y  -> short-circuit, both sides must be boolean
 *
 * Identifiers resolve through Bindings; null, true and false are literals.
 * Number literals become json.Number so they compare exactly with any
 * numeric binding. A bare identifier in boolean position must resolve to a
 * bool.
 */

// Program is a validated, reusable predicate over bindings.
type Program struct {
	root translate.Node
}

// NewProgram validates n and wraps it for evaluation.
func NewProgram(n translate.Node) (*Program, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: empty program", types.ErrTranslationFailed)
	}
	if err := validate(n); err != nil {
		return nil, err
	}
	return &Program{root: n}, nil
}

func validate(n translate.Node) error {
	switch v := n.(type) {
	case translate.Ident:
		if strings.Count(v.Name, ".")+1 > types.MaxBindingDepth {
			return fmt.Errorf("%w: %s", types.ErrBindingPathTooDeep, v.Name)
		}
	case translate.Compare:
		if err := validate(v.Left); err != nil {
			return err
		}
		return validate(v.Right)
	case translate.InstanceOf:
		return validate(v.Value)
	case translate.Logical:
		if err := validate(v.Left); err != nil {
			return err
		}
		return validate(v.Right)
	}
	return nil
}

// Eval evaluates the program against b.
func (p *Program) Eval(b Bindings) (bool, error) {
	return evalBool(p.root, b)
}

// Compile returns a predicate that evaluates n against b on every call.
func Compile(n translate.Node, b Bindings) (Predicate, error) {
	prog, err := NewProgram(n)
	if err != nil {
		return nil, err
	}
	return func() (bool, error) {
		return prog.Eval(b)
	}, nil
}

// CompileExpr parses expr and compiles it against b.
func CompileExpr(expr string, b Bindings) (Predicate, error) {
	n, err := translate.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", expr, err)
	}
	return Compile(n, b)
}

func evalBool(n translate.Node, b Bindings) (bool, error) {
	switch v := n.(type) {
	case translate.Logical:
		left, err := evalBool(v.Left, b)
		if err != nil {
			return false, err
		}
		if v.Op == translate.LogicalAnd && !left {
			return false, nil
		}
		if v.Op == translate.LogicalOr && left {
			return true, nil
		}
		return evalBool(v.Right, b)
	case translate.Compare:
		left, err := evalValue(v.Left, b)
		if err != nil {
			return false, err
		}
		right, err := evalValue(v.Right, b)
		if err != nil {
			return false, err
		}
		return IfEq(left, right) != v.Negated, nil
	case translate.InstanceOf:
		value, err := evalValue(v.Value, b)
		if err != nil {
			return false, err
		}
		return IfInstanceOf(value, v.TypeName), nil
	}

	value, err := evalValue(n, b)
	if err != nil {
		return false, err
	}
	res, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %T is not a boolean", types.ErrTranslationFailed, value)
	}
	return res, nil
}

func evalValue(n translate.Node, b Bindings) (any, error) {
	switch v := n.(type) {
	case translate.Ident:
		switch v.Name {
		case "null":
			return nil, nil
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return b.Resolve(v.Name)
	case translate.Literal:
		return literalValue(v), nil
	}
	return evalBool(n, b)
}

func literalValue(l translate.Literal) any {
	if l.Kind == translate.LitNumber {
		return json.Number(l.Text)
	}
	if s, err := strconv.Unquote(l.Text); err == nil {
		return s
	}
	return l.Unquote()
}
