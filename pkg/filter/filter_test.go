package filter

import (
	"errors"
	"reflect"
	"testing"

	"github.com/funnyzak/gqltap/pkg/inspect"
)

func TestParse(t *testing.T) {
	for _, name := range []string{"all", "GraphQL", " token ", "access", "other"} {
		if _, err := Parse(name); err != nil {
			t.Errorf("expected %q to parse: %v", name, err)
		}
	}
	if _, err := Parse("websocket"); !errors.Is(err, ErrUnknownFilter) {
		t.Fatalf("expected ErrUnknownFilter, got %v", err)
	}
}

func TestSet_AllInvariant(t *testing.T) {
	s := NewSet()
	if !reflect.DeepEqual(s.Active(), []Filter{All}) {
		t.Fatalf("default set should be {all}, got %v", s.Active())
	}

	s.Toggle(Filter(inspect.CategoryGraphQL))
	if s.Has(All) || !s.Has(Filter(inspect.CategoryGraphQL)) {
		t.Fatalf("activating a category must remove all, got %v", s.Active())
	}

	s.Toggle(Filter(inspect.CategoryToken))
	if !reflect.DeepEqual(s.Active(), []Filter{"graphql", "token"}) {
		t.Fatalf("unexpected active set %v", s.Active())
	}

	s.Toggle(Filter(inspect.CategoryGraphQL))
	s.Toggle(Filter(inspect.CategoryToken))
	if !reflect.DeepEqual(s.Active(), []Filter{All}) {
		t.Fatalf("deactivating the last category must restore all, got %v", s.Active())
	}

	s.Activate(Filter(inspect.CategoryAccess))
	s.Toggle(All)
	if !reflect.DeepEqual(s.Active(), []Filter{All}) {
		t.Fatalf("all should clear categories, got %v", s.Active())
	}

	s.Deactivate(All)
	if !s.Has(All) {
		t.Fatalf("all cannot be deactivated directly")
	}
}

func TestSet_Replace(t *testing.T) {
	s := NewSet()
	s.Replace("graphql", "access")
	if !reflect.DeepEqual(s.Active(), []Filter{"access", "graphql"}) {
		t.Fatalf("unexpected active set %v", s.Active())
	}
	s.Replace("graphql", All)
	if !reflect.DeepEqual(s.Active(), []Filter{All}) {
		t.Fatalf("all in a replacement list wins, got %v", s.Active())
	}
	s.Replace()
	if !s.Has(All) {
		t.Fatalf("empty replacement should restore all")
	}

	clone := s.Clone()
	clone.Activate("token")
	if !s.Has(All) || s.Has("token") {
		t.Fatalf("clone must not alias the original")
	}
}

func TestShouldShow(t *testing.T) {
	all := NewSet()
	graphqlOnly := NewSet()
	graphqlOnly.Activate(Filter(inspect.CategoryGraphQL))
	tokenOnly := NewSet()
	tokenOnly.Activate(Filter(inspect.CategoryToken))

	if !ShouldShow(inspect.CategoryOther, false, all) {
		t.Fatalf("all should show every row")
	}
	if !ShouldShow(inspect.CategoryGraphQL, false, graphqlOnly) {
		t.Fatalf("graphql row should show under graphql filter")
	}
	if ShouldShow(inspect.CategoryOther, false, graphqlOnly) {
		t.Fatalf("other row should be hidden under graphql filter")
	}
	if ShouldShow(inspect.CategoryGraphQL, false, tokenOnly) {
		t.Fatalf("graphql row should be hidden under token filter")
	}
	if !ShouldShow(inspect.CategoryGraphQL, false, nil) {
		t.Fatalf("nil set behaves like all")
	}
}

func TestShouldShow_SlowRowsNeverHidden(t *testing.T) {
	states := []*Set{NewSet(), nil}
	for _, names := range [][]Filter{{"graphql"}, {"token"}, {"access", "other"}, {"graphql", "token", "access", "other"}} {
		s := NewSet()
		s.Replace(names...)
		states = append(states, s)
	}
	emptied := NewSet()
	emptied.Activate("token")
	emptied.Deactivate("token")
	states = append(states, emptied)

	for _, s := range states {
		for _, c := range inspect.Categories {
			if !ShouldShow(c, true, s) {
				t.Fatalf("slow %s row hidden under %v", c, s)
			}
		}
	}
}
