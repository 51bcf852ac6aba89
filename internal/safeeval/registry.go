// internal/safeeval/registry.go
package safeeval

import (
	"fmt"
	"sort"
	"sync"

	"github.com/solatis/btmgen/internal/types"
)

/*
 * Keyed predicate registry.
 *
 * Opaque guard conditions are compiled ahead of time and stored under their
 * stable rule ID. Rules then ask IfMatch(id) instead of evaluating the raw
 * expression. IfMatch fails open: a missing key, an error or a panic all
 * report true, so instrumentation never hides a branch. Evaluate is the
 * strict variant for callers that want to see the failure.
 */

// Predicate evaluates one registered condition.
type Predicate func() (bool, error)

// Registry maps rule IDs to predicates. The zero value is not usable; call
// NewRegistry.
type Registry struct {
	mu    sync.RWMutex
	preds map[string]Predicate
}

// Default is the process-wide registry used by the package-level IfMatch.
var Default = NewRegistry()

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{preds: make(map[string]Predicate)}
}

// Register stores p under id, replacing any previous entry. A nil p removes
// the entry.
func (r *Registry) Register(id string, p Predicate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p == nil {
		delete(r.preds, id)
		return
	}
	r.preds[id] = p
}

// Lookup returns the predicate stored under id.
func (r *Registry) Lookup(id string) (Predicate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.preds[id]
	return p, ok
}

// Evaluate runs the predicate stored under id. Panics are converted to
// errors.
func (r *Registry) Evaluate(id string) (ok bool, err error) {
	p, found := r.Lookup(id)
	if !found {
		return false, fmt.Errorf("%w: %s", types.ErrPredicateNotFound, id)
	}
	defer func() {
		if rec := recover(); rec != nil {
			ok, err = false, fmt.Errorf("predicate %s panicked: %v", id, rec)
		}
	}()
	return p()
}

// IfMatch evaluates the predicate stored under id, returning true when it is
// missing or fails.
func (r *Registry) IfMatch(id string) bool {
	ok, err := r.Evaluate(id)
	if err != nil {
		return true
	}
	return ok
}

// Clear removes every predicate.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.preds)
}

// Len returns the number of registered predicates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.preds)
}

// IDs returns the registered rule IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.preds))
	for id := range r.preds {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// IfMatch evaluates id against the Default registry.
func IfMatch(id string) bool {
	return Default.IfMatch(id)
}

// And is the non-short-circuit conjunction used by translated expressions.
func And(a, b bool) bool { return a && b }

// Or is the non-short-circuit disjunction used by translated expressions.
func Or(a, b bool) bool { return a || b }
