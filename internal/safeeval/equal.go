// internal/safeeval/equal.go
package safeeval

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
)

/*
 * Equality for guard predicates.
 *
 * Comparison order:
 *   1. nil: equal only to nil (typed nil pointers, maps and slices count)
 *   2. numbers: exact comparison as big.Rat across every Go numeric kind,
 *      math/big values and json.Number; floats convert through their
 *      shortest decimal form so 0.1 equals json.Number("0.1")
 *   3. fmt.Stringer against a string: compared by name, either side
 *   4. string kinds: compared by content across named string types
 *   5. everything else: Go equality, false for uncomparable values
 */

// IfEq reports whether a and b are equal under guard semantics.
func IfEq(a, b any) bool {
	an, bn := isNil(a), isNil(b)
	if an || bn {
		return an && bn
	}
	if ra, ok := toRat(a); ok {
		if rb, ok := toRat(b); ok {
			return ra.Cmp(rb) == 0
		}
	}
	if eq, ok := stringerEqual(a, b); ok {
		return eq
	}
	if eq, ok := stringerEqual(b, a); ok {
		return eq
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.String && vb.Kind() == reflect.String {
		return va.String() == vb.String()
	}
	return safeEqual(a, b)
}

// stringerEqual compares an enum-like value with a plain string by name.
func stringerEqual(a, b any) (bool, bool) {
	s, ok := a.(fmt.Stringer)
	if !ok {
		return false, false
	}
	name, ok := b.(string)
	if !ok {
		return false, false
	}
	return s.String() == name, true
}

func safeEqual(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if !ta.Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

// toRat converts numeric values to an exact rational.
func toRat(v any) (*big.Rat, bool) {
	switch n := v.(type) {
	case *big.Int:
		return new(big.Rat).SetInt(n), true
	case *big.Rat:
		return n, true
	case *big.Float:
		if n.IsInf() {
			return nil, false
		}
		r, _ := n.Rat(nil)
		return r, true
	case json.Number:
		return new(big.Rat).SetString(string(n))
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(rv.Uint())), true
	case reflect.Float32:
		return floatRat(rv.Float(), 32)
	case reflect.Float64:
		return floatRat(rv.Float(), 64)
	}
	return nil, false
}

func floatRat(f float64, bits int) (*big.Rat, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, false
	}
	return new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, bits))
}
