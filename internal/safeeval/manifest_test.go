package safeeval

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/solatis/btmgen/internal/types"
)

func TestManifest_RoundTripAndRegister(t *testing.T) {
	path := filepath.Join(t.TempDir(), ManifestFile)
	in := &Manifest{
		Helper: types.DefaultSafeEvalFQCN,
		Predicates: []Entry{
			{RuleID: "r-1", Class: "a.B", Method: "m", Line: 7, Condition: "a == 1 || b != 2", Expression: "H.or(H.ifEq(a, 1), !H.ifEq(b, 2))"},
			{RuleID: "r-2", Class: "a.B", Method: "m", Line: 9, Condition: "list.isEmpty()", Expression: "true"},
		},
	}
	if err := WriteManifest(path, in); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}

	out, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest() error = %v", err)
	}
	want := *in
	want.Version = ManifestVersion
	want.Generator = types.GeneratorName
	if !reflect.DeepEqual(*out, want) {
		t.Errorf("LoadManifest() = %+v, want %+v", *out, want)
	}

	reg := NewRegistry()
	compiled, err := out.Register(reg, Bindings{"a": 2, "b": 2})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if compiled != 1 || reg.Len() != 2 {
		t.Errorf("compiled = %d, registered = %d, want 1 and 2", compiled, reg.Len())
	}
	if reg.IfMatch("r-1") {
		t.Error("r-1 matched with a=2, b=2")
	}
	if !reg.IfMatch("r-2") {
		t.Error("untranslatable r-2 did not register as true")
	}
}

func TestLoadManifest_Errors(t *testing.T) {
	dir := t.TempDir()
	newer := filepath.Join(dir, "newer.yaml")
	if err := os.WriteFile(newer, []byte("version: 99\npredicates: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("predicates: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadManifest(newer); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("newer version error = %v, want ErrInvalidConfig", err)
	}
	if _, err := LoadManifest(broken); err == nil {
		t.Error("broken YAML loaded without error")
	}
	if _, err := LoadManifest(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestManifest_RegisterRequiresRuleID(t *testing.T) {
	m := &Manifest{Predicates: []Entry{{Condition: "a == 1"}}}
	if _, err := m.Register(NewRegistry(), Bindings{}); !errors.Is(err, types.ErrInvalidConfig) {
		t.Errorf("Register() error = %v, want ErrInvalidConfig", err)
	}
}
