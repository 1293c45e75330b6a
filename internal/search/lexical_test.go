package search

import (
	"testing"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/lexindex"
)

func newLexicalFixture(t *testing.T) (*Lexical, *graph.Store) {
	t.Helper()
	bus := events.New()
	dir := t.TempDir()
	store := graph.New(dir+"/graph.jsonl", bus)
	if err := store.AppendEntity(&graph.Entity{
		Name:         "Alice Smith",
		EntityType:   "person",
		Observations: []string{"works at Acme Corp", "enjoys hiking"},
		Importance:   6,
	}); err != nil {
		t.Fatalf("AppendEntity: %v", err)
	}
	if err := store.AppendEntity(&graph.Entity{
		Name:         "Bob Jones",
		EntityType:   "person",
		Observations: []string{"plays guitar"},
		Importance:   4,
	}); err != nil {
		t.Fatalf("AppendEntity: %v", err)
	}

	idx := lexindex.New()
	for _, e := range store.All() {
		idx.AddDocument(e.Name, e.DocumentText())
	}
	return NewLexical(idx, store), store
}

func TestLexical_Ranked(t *testing.T) {
	l, _ := newLexicalFixture(t)
	results := l.Ranked("hiking", RankedOptions{})
	if len(results) != 1 || results[0].Name != "Alice Smith" {
		t.Fatalf("expected Alice Smith to match 'hiking', got %+v", results)
	}
}

func TestLexical_Boolean(t *testing.T) {
	l, _ := newLexicalFixture(t)
	results, err := l.Boolean(`name:Alice AND observation:hiking`)
	if err != nil {
		t.Fatalf("Boolean: %v", err)
	}
	if len(results) != 1 || results[0].Name != "Alice Smith" {
		t.Fatalf("expected Alice Smith, got %+v", results)
	}
}

func TestLexical_Fuzzy(t *testing.T) {
	l, _ := newLexicalFixture(t)
	results := l.Fuzzy("Alise Smith", 0.7)
	found := false
	for _, r := range results {
		if r.Name == "Alice Smith" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected fuzzy match for near-typo name, got %+v", results)
	}
}
