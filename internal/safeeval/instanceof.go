// internal/safeeval/instanceof.go
package safeeval

import (
	"encoding/json"
	"fmt"
	"math/big"
	"reflect"
	"strings"
	"sync"
)

/*
 * Type membership for guard predicates.
 *
 * A name matches a value when it equals the short, qualified or
 * import-path form of the dynamic type, of its pointee, or of any embedded
 * struct type reachable from it. Embedding stands in for the superclass
 * chain. Interface names resolve through the interface registry and are
 * checked with Implements. A small set of java.lang and java.util names
 * map onto the corresponding Go kinds.
 */

var interfaces = struct {
	sync.RWMutex
	byName map[string]reflect.Type
}{
	byName: map[string]reflect.Type{
		"error":        reflect.TypeOf((*error)(nil)).Elem(),
		"fmt.Stringer": reflect.TypeOf((*fmt.Stringer)(nil)).Elem(),
		"Stringer":     reflect.TypeOf((*fmt.Stringer)(nil)).Elem(),
	},
}

// RegisterInterface makes interface type T addressable by name in
// IfInstanceOf. It panics if T is not an interface type.
func RegisterInterface[T any](name string) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() != reflect.Interface {
		panic(fmt.Sprintf("safeeval: %s is not an interface type", t))
	}
	interfaces.Lock()
	defer interfaces.Unlock()
	interfaces.byName[name] = t
}

var (
	ratType   = reflect.TypeOf((*big.Rat)(nil))
	intType   = reflect.TypeOf((*big.Int)(nil))
	floatType = reflect.TypeOf((*big.Float)(nil))
	numType   = reflect.TypeOf(json.Number(""))
)

func isKind(t reflect.Type, kinds ...reflect.Kind) bool {
	for _, k := range kinds {
		if t.Kind() == k {
			return true
		}
	}
	return false
}

var builtinTypes = map[string]func(reflect.Type) bool{
	"java.lang.Object": func(reflect.Type) bool { return true },
	"java.lang.String": func(t reflect.Type) bool { return t.Kind() == reflect.String && t != numType },
	"java.lang.CharSequence": func(t reflect.Type) bool {
		return t.Kind() == reflect.String && t != numType
	},
	"java.lang.Number": func(t reflect.Type) bool {
		return t == ratType || t == intType || t == floatType || t == numType ||
			isKind(t, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
				reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
				reflect.Float32, reflect.Float64)
	},
	"java.lang.Integer": func(t reflect.Type) bool {
		return isKind(t, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32)
	},
	"java.lang.Long":    func(t reflect.Type) bool { return isKind(t, reflect.Int, reflect.Int64) },
	"java.lang.Double":  func(t reflect.Type) bool { return t.Kind() == reflect.Float64 },
	"java.lang.Float":   func(t reflect.Type) bool { return t.Kind() == reflect.Float32 },
	"java.lang.Boolean": func(t reflect.Type) bool { return t.Kind() == reflect.Bool },
	"java.util.Map":     func(t reflect.Type) bool { return t.Kind() == reflect.Map },
	"java.util.List":    func(t reflect.Type) bool { return isKind(t, reflect.Slice, reflect.Array) },
	"java.util.Collection": func(t reflect.Type) bool {
		return isKind(t, reflect.Slice, reflect.Array, reflect.Map)
	},
}

// builtin resolves both "java.lang.String" and "String".
func builtin(name string) (func(reflect.Type) bool, bool) {
	if fn, ok := builtinTypes[name]; ok {
		return fn, true
	}
	for full, fn := range builtinTypes {
		if full[strings.LastIndexByte(full, '.')+1:] == name {
			return fn, true
		}
	}
	return nil, false
}

// IfInstanceOf reports whether v's dynamic type matches typeName. A nil
// value is never an instance of anything.
func IfInstanceOf(v any, typeName string) bool {
	name := strings.TrimSpace(typeName)
	if isNil(v) || name == "" {
		return false
	}
	t := reflect.TypeOf(v)

	if fn, ok := builtin(name); ok && fn(t) {
		return true
	}

	interfaces.RLock()
	iface, ok := interfaces.byName[name]
	interfaces.RUnlock()
	if ok && t.Implements(iface) {
		return true
	}

	return matchesType(t, name, 0)
}

// matchesType checks t, its pointee and its embedded struct types.
func matchesType(t reflect.Type, name string, depth int) bool {
	if depth > 8 {
		return false
	}
	if t.Kind() == reflect.Pointer {
		if typeNamed(t, name) {
			return true
		}
		t = t.Elem()
	}
	if typeNamed(t, name) {
		return true
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Anonymous && matchesType(f.Type, name, depth+1) {
			return true
		}
	}
	return false
}

func typeNamed(t reflect.Type, name string) bool {
	if t.Name() != "" {
		if t.Name() == name {
			return true
		}
		if t.PkgPath() != "" && t.PkgPath()+"."+t.Name() == name {
			return true
		}
	}
	return t.String() == name
}
