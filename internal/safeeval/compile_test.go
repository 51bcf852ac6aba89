package safeeval

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/solatis/btmgen/internal/translate"
	"github.com/solatis/btmgen/internal/types"
)

func TestCompileExpr(t *testing.T) {
	tests := []struct {
		name     string
		expr     string
		bindings Bindings
		want     bool
		wantErr  error
	}{
		{name: "int equality", expr: "a == 1", bindings: Bindings{"a": 1}, want: true},
		{name: "decimal binding", expr: "a == 1", bindings: Bindings{"a": json.Number("1.0")}, want: true},
		{name: "inequality", expr: "a != 1", bindings: Bindings{"a": 2}, want: true},
		{name: "string literal", expr: `status == "READY"`, bindings: Bindings{"status": "READY"}, want: true},
		{name: "escaped string literal", expr: `s == "a\"b"`, bindings: Bindings{"s": `a"b`}, want: true},
		{name: "enum by name", expr: `s == "NOK"`, bindings: Bindings{"s": stateNOK}, want: true},
		{name: "char literal", expr: "user.initial == 'x'", bindings: Bindings{"user": map[string]any{"initial": "x"}}, want: true},
		{name: "slice index", expr: "items.1 == 20", bindings: Bindings{"items": []any{10, 20}}, want: true},
		{name: "null check", expr: "x == null", bindings: Bindings{"x": nil}, want: true},
		{name: "not null", expr: "x != null", bindings: Bindings{"x": "v"}, want: true},
		{name: "instanceof", expr: "v instanceof String", bindings: Bindings{"v": "s"}, want: true},
		{name: "instanceof mismatch", expr: "v instanceof Number", bindings: Bindings{"v": "s"}, want: false},
		{name: "or short-circuits", expr: "a == 1 || b.c == 2", bindings: Bindings{"a": 1}, want: true},
		{name: "and short-circuits", expr: "a == 2 && b.c == 2", bindings: Bindings{"a": 1}, want: false},
		{name: "nested comparison", expr: "(a == 1) == true", bindings: Bindings{"a": 1}, want: true},
		{name: "bare boolean", expr: "flag", bindings: Bindings{"flag": true}, want: true},
		{name: "mixed composition", expr: "a == 1 && (b != 2 || c instanceof Map)", bindings: Bindings{"a": 1, "b": 2, "c": map[string]any{}}, want: true},
		{name: "missing binding", expr: "a == 1 && b.c == 2", bindings: Bindings{"a": 1}, wantErr: types.ErrBindingNotFound},
		{name: "bare non-boolean", expr: "flag", bindings: Bindings{"flag": "yes"}, wantErr: types.ErrTranslationFailed},
		{name: "call rejected", expr: "list.isEmpty()", bindings: Bindings{}, wantErr: types.ErrTranslationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompileExpr(tt.expr, tt.bindings)
			if err == nil {
				var got bool
				got, err = p()
				if err == nil && got != tt.want {
					t.Errorf("predicate %q = %v, want %v", tt.expr, got, tt.want)
				}
			}
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCompile_SeesBindingUpdates(t *testing.T) {
	b := Bindings{"n": 1}
	p, err := CompileExpr("n == 2", b)
	if err != nil {
		t.Fatal(err)
	}
	if ok, _ := p(); ok {
		t.Fatal("predicate true before update")
	}
	b["n"] = int64(2)
	if ok, _ := p(); !ok {
		t.Error("predicate false after update")
	}
}

func TestNewProgram_Validation(t *testing.T) {
	if _, err := NewProgram(nil); !errors.Is(err, types.ErrTranslationFailed) {
		t.Errorf("NewProgram(nil) error = %v", err)
	}
	deep := strings.TrimSuffix(strings.Repeat("a.", types.MaxBindingDepth+1), ".")
	n := translate.Compare{Left: translate.Ident{Name: deep}, Right: translate.Literal{Kind: translate.LitNumber, Text: "1"}}
	if _, err := NewProgram(n); !errors.Is(err, types.ErrBindingPathTooDeep) {
		t.Errorf("NewProgram(deep path) error = %v, want ErrBindingPathTooDeep", err)
	}
}

func TestBindings_Resolve(t *testing.T) {
	b := Bindings{
		"order.id": "flat",
		"order":    map[string]any{"id": "nested", "lines": []any{map[string]any{"sku": "A1"}}},
	}
	tests := []struct {
		name    string
		path    string
		want    any
		wantErr error
	}{
		{name: "flat key wins", path: "order.id", want: "flat"},
		{name: "nested slice", path: "order.lines.0.sku", want: "A1"},
		{name: "index out of range", path: "order.lines.3.sku", wantErr: types.ErrBindingNotFound},
		{name: "non-numeric index", path: "order.lines.x", wantErr: types.ErrBindingNotFound},
		{name: "through scalar", path: "order.id.x", wantErr: types.ErrBindingNotFound},
		{name: "too deep", path: strings.Repeat("x.", types.MaxBindingDepth) + "x", wantErr: types.ErrBindingPathTooDeep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := b.Resolve(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve(%q) error = %v, want %v", tt.path, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %#v, want %#v", tt.path, got, tt.want)
			}
		})
	}
}

func TestParseBinding(t *testing.T) {
	tests := []struct {
		in      string
		name    string
		want    any
		wantErr bool
	}{
		{in: "a=1", name: "a", want: json.Number("1")},
		{in: "rate = 1.5e3", name: "rate", want: json.Number("1.5e3")},
		{in: `s="x y"`, name: "s", want: "x y"},
		{in: "c='z'", name: "c", want: "z"},
		{in: "ok=true", name: "ok", want: true},
		{in: "off=false", name: "off", want: false},
		{in: "n=null", name: "n", want: nil},
		{in: "w=hello", name: "w", want: "hello"},
		{in: "h=0x10", name: "h", want: "0x10"},
		{in: "i=Inf", name: "i", want: "Inf"},
		{in: "empty=", name: "empty", want: ""},
		{in: "=1", wantErr: true},
		{in: "noequals", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			name, got, err := ParseBinding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBinding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, types.ErrInvalidConfig) {
					t.Errorf("error %v does not wrap ErrInvalidConfig", err)
				}
				return
			}
			if name != tt.name || got != tt.want {
				t.Errorf("ParseBinding(%q) = (%q, %#v), want (%q, %#v)", tt.in, name, got, tt.name, tt.want)
			}
		})
	}
}

func TestParseBindings_LaterEntriesWin(t *testing.T) {
	b, err := ParseBindings([]string{"a=1", "b=x", "a=2"})
	if err != nil {
		t.Fatal(err)
	}
	if b["a"] != json.Number("2") || b["b"] != "x" {
		t.Errorf("ParseBindings() = %#v", b)
	}
}
