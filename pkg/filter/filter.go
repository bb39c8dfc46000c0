package filter

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/funnyzak/gqltap/pkg/inspect"
)

// Filter is a category filter; All shows every row.
type Filter string

// All is the catch-all filter, mutually exclusive with specific categories.
const All Filter = "all"

// ErrUnknownFilter is returned by Parse for names that are not categories.
var ErrUnknownFilter = errors.New("unknown filter")

// Parse resolves a filter name case-insensitively.
func Parse(name string) (Filter, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if norm == string(All) {
		return All, nil
	}
	for _, c := range inspect.Categories {
		if norm == string(c) {
			return Filter(c), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFilter, name)
}

// Set is the active filter set. The zero value is not usable; call NewSet.
// Invariant: it holds either exactly {all} or a non-empty set of categories.
type Set struct {
	active map[Filter]struct{}
}

// NewSet returns the default {all} set.
func NewSet() *Set {
	s := &Set{}
	s.reset()
	return s
}

func (s *Set) reset() {
	s.active = map[Filter]struct{}{All: {}}
}

// Has reports whether f is active.
func (s *Set) Has(f Filter) bool {
	_, ok := s.active[f]
	return ok
}

// Toggle behaves like the filter buttons: All clears everything else, a
// category flips on or off, and an empty set falls back to All.
func (s *Set) Toggle(f Filter) {
	if f == All {
		s.reset()
		return
	}
	if s.Has(f) {
		s.Deactivate(f)
		return
	}
	s.Activate(f)
}

// Activate turns f on, removing All when f is a category.
func (s *Set) Activate(f Filter) {
	if f == All {
		s.reset()
		return
	}
	delete(s.active, All)
	s.active[f] = struct{}{}
}

// Deactivate turns f off; deactivating the last category restores All.
func (s *Set) Deactivate(f Filter) {
	if f == All {
		return
	}
	delete(s.active, f)
	if len(s.active) == 0 {
		s.reset()
	}
}

// Replace sets the active filters wholesale. An empty list, or any list
// containing All, yields {all}.
func (s *Set) Replace(filters ...Filter) {
	s.reset()
	for _, f := range filters {
		if f == All {
			s.reset()
			return
		}
	}
	for _, f := range filters {
		s.Activate(f)
	}
}

// Active lists the active filters in a stable order.
func (s *Set) Active() []Filter {
	out := make([]Filter, 0, len(s.active))
	for f := range s.active {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	c := &Set{active: make(map[Filter]struct{}, len(s.active))}
	for f := range s.active {
		c.active[f] = struct{}{}
	}
	return c
}

// ShouldShow decides row visibility: slow rows are never hidden, All shows
// everything, otherwise the row's category must be active.
func ShouldShow(category inspect.Category, flaggedSlow bool, set *Set) bool {
	if flaggedSlow {
		return true
	}
	if set == nil || set.Has(All) {
		return true
	}
	return set.Has(Filter(category))
}
