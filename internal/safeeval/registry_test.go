package safeeval

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/solatis/btmgen/internal/types"
)

func constant(v bool) Predicate {
	return func() (bool, error) { return v, nil }
}

func TestIfMatch_MissingPredicateFailsOpen(t *testing.T) {
	t.Cleanup(Default.Clear)
	if !IfMatch("missing") {
		t.Error("IfMatch on a missing rule id = false, want true")
	}
}

func TestIfMatch_RegisterAndReplace(t *testing.T) {
	t.Cleanup(Default.Clear)
	Default.Register("RID", constant(true))
	if !IfMatch("RID") {
		t.Error("IfMatch = false after registering true")
	}
	Default.Register("RID", constant(false))
	if IfMatch("RID") {
		t.Error("IfMatch = true after replacing with false")
	}
}

func TestIfMatch_FailuresAreFailOpen(t *testing.T) {
	r := NewRegistry()
	r.Register("err", func() (bool, error) { return false, errors.New("boom") })
	r.Register("panic", func() (bool, error) { panic("boom") })

	for _, id := range []string{"err", "panic"} {
		if !r.IfMatch(id) {
			t.Errorf("IfMatch(%q) = false, want true", id)
		}
	}
}

func TestRegistry_Evaluate(t *testing.T) {
	r := NewRegistry()
	r.Register("yes", constant(true))
	r.Register("panic", func() (bool, error) { panic("boom") })

	tests := []struct {
		name    string
		id      string
		want    bool
		wantErr bool
		is      error
	}{
		{name: "registered", id: "yes", want: true},
		{name: "missing", id: "nope", wantErr: true, is: types.ErrPredicateNotFound},
		{name: "panic becomes error", id: "panic", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Evaluate(tt.id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Evaluate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Evaluate() error = %v, want %v", err, tt.is)
			}
			if got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRegistry_Bookkeeping(t *testing.T) {
	r := NewRegistry()
	r.Register("b", constant(true))
	r.Register("a", constant(true))
	r.Register("c", constant(true))
	r.Register("c", nil)

	if got := r.IDs(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v, want [a b]", got)
	}
	if _, ok := r.Lookup("c"); ok {
		t.Error("nil registration did not remove the entry")
	}
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := fmt.Sprintf("r%d-%d", i, j)
				r.Register(id, constant(j%2 == 0))
				if r.IfMatch(id) != (j%2 == 0) {
					t.Errorf("IfMatch(%s) returned the wrong value", id)
				}
			}
		}()
	}
	wg.Wait()
	if r.Len() != 800 {
		t.Errorf("Len() = %d, want 800", r.Len())
	}
}
