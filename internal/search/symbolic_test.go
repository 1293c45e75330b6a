package search

import (
	"testing"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
)

func entityFixture(name string, importance float64, tags ...string) *graph.Entity {
	return &graph.Entity{
		Name:         name,
		EntityType:   "person",
		Tags:         tags,
		Importance:   importance,
		Observations: []string{"likes coffee"},
		CreatedAt:    time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
}

func TestSymbolic_TagFilter(t *testing.T) {
	entities := []*graph.Entity{
		entityFixture("alice", 5, "vip", "engineer"),
		entityFixture("bob", 5, "contractor"),
	}
	s := NewSymbolic()
	got := s.Search(entities, Filters{Tags: []string{"VIP"}})
	if len(got) != 1 || got[0].Name != "alice" {
		t.Fatalf("expected only alice, got %+v", got)
	}
}

func TestSymbolic_ImportanceDefaultMin(t *testing.T) {
	entities := []*graph.Entity{
		entityFixture("low", 3),
		entityFixture("high", 7),
	}
	s := NewSymbolic()
	got := s.Search(entities, Filters{})
	if len(got) != 1 || got[0].Name != "high" {
		t.Fatalf("expected default min importance 5 to exclude low, got %+v", got)
	}
}

func TestSymbolic_DateRange(t *testing.T) {
	entities := []*graph.Entity{entityFixture("alice", 5)}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	s := NewSymbolic()
	got := s.Search(entities, Filters{DateRange: &DateRange{Start: &start, End: &end}, Importance: &ImportanceRange{}})
	if len(got) != 0 {
		t.Fatalf("expected no matches outside date range, got %+v", got)
	}
}

func TestSymbolic_HasObservations(t *testing.T) {
	withObs := entityFixture("alice", 5)
	withoutObs := entityFixture("bob", 5)
	withoutObs.Observations = nil
	entities := []*graph.Entity{withObs, withoutObs}
	s := NewSymbolic()
	want := false
	got := s.Search(entities, Filters{HasObservations: &want, Importance: &ImportanceRange{}})
	if len(got) != 1 || got[0].Name != "bob" {
		t.Fatalf("expected only bob (no observations), got %+v", got)
	}
}
