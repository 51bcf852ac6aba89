// internal/safeeval/binding.go
package safeeval

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/solatis/btmgen/internal/types"
)

/*
 * Variable bindings for compiled predicates.
 *
 * A dotted identifier such as order.items.0.price is resolved segment by
 * segment through map[string]any and []any values. Numeric segments index
 * slices. A flat key containing dots ("order.id") takes precedence over
 * traversal so command-line bindings can shadow nested data. Paths deeper
 * than MaxBindingDepth are rejected.
 *
 * ParseBinding turns "name=value" text into a binding with these rules:
 *   null            -> nil
 *   true / false    -> bool
 *   numeric text    -> json.Number (exact comparison in IfEq)
 *   "..." or '...'  -> string without quotes
 *   anything else   -> string as written
 */

// Bindings are the values visible to a compiled predicate.
type Bindings map[string]any

// Resolve looks up a dotted name. It returns ErrBindingNotFound when any
// segment is missing.
func (b Bindings) Resolve(name string) (any, error) {
	if v, ok := b[name]; ok {
		return v, nil
	}
	segs := strings.Split(name, ".")
	if len(segs) > types.MaxBindingDepth {
		return nil, fmt.Errorf("%w: %s", types.ErrBindingPathTooDeep, name)
	}
	var current any = map[string]any(b)
	for _, seg := range segs {
		next, ok := step(current, seg)
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrBindingNotFound, name)
		}
		current = next
	}
	return current, nil
}

func step(current any, seg string) (any, bool) {
	switch v := current.(type) {
	case map[string]any:
		next, ok := v[seg]
		return next, ok
	case Bindings:
		next, ok := v[seg]
		return next, ok
	case []any:
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 || i >= len(v) {
			return nil, false
		}
		return v[i], true
	}
	return nil, false
}

// ParseBinding parses "name=value".
func ParseBinding(s string) (string, any, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", nil, fmt.Errorf("%w: binding %q must have the form name=value", types.ErrInvalidConfig, s)
	}
	return name, coerceBinding(strings.TrimSpace(raw)), nil
}

func coerceBinding(raw string) any {
	switch raw {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if len(raw) >= 2 {
		q := raw[0]
		if (q == '"' || q == '\'') && raw[len(raw)-1] == q {
			return raw[1 : len(raw)-1]
		}
	}
	if isDecimal(raw) {
		return json.Number(raw)
	}
	return raw
}

// isDecimal accepts plain decimal and exponent forms, rejecting the hex,
// underscore and Inf/NaN spellings strconv also understands.
func isDecimal(raw string) bool {
	if _, err := strconv.ParseFloat(raw, 64); err != nil {
		return false
	}
	return strings.IndexFunc(raw, func(r rune) bool {
		return !strings.ContainsRune("0123456789+-.eE", r)
	}) < 0
}

// ParseBindings parses each "name=value" entry into one Bindings map.
// Later entries win.
func ParseBindings(entries []string) (Bindings, error) {
	b := make(Bindings, len(entries))
	for _, e := range entries {
		name, v, err := ParseBinding(e)
		if err != nil {
			return nil, err
		}
		b[name] = v
	}
	return b, nil
}
