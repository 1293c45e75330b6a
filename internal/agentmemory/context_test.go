package agentmemory

import (
	"testing"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
)

func newTestManager(now time.Time) *Manager {
	decay := NewDecayEngine(DefaultDecayConfig(), fixedClock(now))
	eng := NewEngine(DefaultSalienceConfig(), decay, nil, fixedClock(now))
	return NewManager(DefaultContextWindowConfig(), eng)
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	e := &graph.Entity{
		Name: "Alice Smith", EntityType: "person",
		Observations: []string{"works at Acme Corp", "likes chess"},
	}
	tokens := EstimateTokens(e, 1.3)
	// words: "Alice Smith"(2) + "person"(1) + "works at Acme Corp"(4) + "likes chess"(2) = 9
	if tokens != 12 { // ceil(9*1.3) = 12
		t.Errorf("EstimateTokens = %d, want 12", tokens)
	}
}

func TestManager_Pack_MustIncludeAndBudget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	entities := []*graph.Entity{
		{Name: "Must Have", EntityType: "note", Observations: []string{"critical fact"}, Importance: 9},
		{Name: "Nice To Have", EntityType: "note", Observations: []string{"minor detail"}, Importance: 5},
		{Name: "Missing", EntityType: "note"},
	}

	result := m.Pack(PackRequest{
		Candidates:       entities[:2],
		MustIncludeNames: []string{"Must Have", "Missing"},
		MaxTokens:        200,
	})

	if len(result.MustInclude) != 1 {
		t.Fatalf("MustInclude = %+v, want exactly 1 (Missing isn't in Candidates)", result.MustInclude)
	}
	if result.MustInclude[0].Entity.Name != "Must Have" {
		t.Errorf("MustInclude[0] = %q, want Must Have", result.MustInclude[0].Entity.Name)
	}
	foundNotFound := false
	for _, ex := range result.Excluded {
		if ex.Name == "Missing" && ex.Reason == ReasonNotFound {
			foundNotFound = true
		}
	}
	if !foundNotFound {
		t.Error("expected Missing to be excluded with reason not_found")
	}
	if len(result.Warnings) == 0 {
		t.Error("expected a warning for the missing must_include entity")
	}
}

func TestManager_Pack_BudgetExceeded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	entities := []*graph.Entity{
		{Name: "A", EntityType: "note", Observations: []string{"one two three four five six seven eight nine ten"}, Importance: 8},
		{Name: "B", EntityType: "note", Observations: []string{"eleven twelve thirteen fourteen fifteen sixteen seventeen eighteen nineteen twenty"}, Importance: 8},
	}

	result := m.Pack(PackRequest{
		Candidates: entities,
		MaxTokens:  20, // smaller than ReserveBuffer(100) forces budget to 0
	})
	if len(result.Selected) != 0 {
		t.Fatalf("Selected = %+v, want none (budget collapses to 0)", result.Selected)
	}
	for _, ex := range result.Excluded {
		if ex.Reason != ReasonBudgetExceeded {
			t.Errorf("excluded reason = %v, want budget_exceeded", ex.Reason)
		}
	}
}

func TestManager_Pack_MinSalienceExcludes(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	e := &graph.Entity{Name: "Low", EntityType: "note", Importance: 0}
	result := m.Pack(PackRequest{
		Candidates:  []*graph.Entity{e},
		MaxTokens:   4000,
		MinSalience: 0.99,
	})
	if len(result.Selected) != 0 {
		t.Fatalf("Selected = %+v, want none (below MinSalience)", result.Selected)
	}
	if len(result.Excluded) != 1 || result.Excluded[0].Reason != ReasonLowSalience {
		t.Fatalf("Excluded = %+v, want low_salience", result.Excluded)
	}
}

func TestManager_Pack_DiversityRejectsNearDuplicate(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	m := newTestManager(now)

	entities := []*graph.Entity{
		{Name: "First", EntityType: "note", Observations: []string{"the quick brown fox jumps"}, Importance: 8},
		{Name: "Duplicate", EntityType: "note", Observations: []string{"the quick brown fox jumps"}, Importance: 7},
	}
	result := m.Pack(PackRequest{Candidates: entities, MaxTokens: 4000})

	if len(result.Selected) != 1 {
		t.Fatalf("Selected = %+v, want exactly 1 (the duplicate should be diversity-rejected)", result.Selected)
	}
}

func TestCalculateDiversityScore(t *testing.T) {
	t.Parallel()

	single := []*graph.Entity{{Name: "A", Observations: []string{"x"}}}
	if got := CalculateDiversityScore(single); got != 1.0 {
		t.Errorf("CalculateDiversityScore(single) = %v, want 1.0", got)
	}

	identical := []*graph.Entity{
		{Name: "A", Observations: []string{"same text"}},
		{Name: "B", Observations: []string{"same text"}},
	}
	if got := CalculateDiversityScore(identical); got != 0 {
		t.Errorf("CalculateDiversityScore(identical) = %v, want 0", got)
	}
}

func TestSpilloverPage(t *testing.T) {
	t.Parallel()

	excluded := []ExcludedItem{
		{Name: "A", Salience: 0.9},
		{Name: "B", Salience: 0.8},
		{Name: "C", Salience: 0.7},
	}

	page, cursor, err := SpilloverPage(excluded, "", 2)
	if err != nil {
		t.Fatalf("SpilloverPage: %v", err)
	}
	if len(page) != 2 || cursor == "" {
		t.Fatalf("page = %+v, cursor = %q, want 2 items and a continuation cursor", page, cursor)
	}

	page2, cursor2, err := SpilloverPage(excluded, cursor, 2)
	if err != nil {
		t.Fatalf("SpilloverPage page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].Name != "C" || cursor2 != "" {
		t.Fatalf("page2 = %+v, cursor2 = %q, want [C] and no further cursor", page2, cursor2)
	}
}

func TestBuildSuggestions_RemainingCount(t *testing.T) {
	t.Parallel()

	excluded := make([]ExcludedItem, 6)
	for i := range excluded {
		excluded[i] = ExcludedItem{Name: string(rune('A' + i)), Salience: float64(6 - i)}
	}
	s := buildSuggestions(excluded)
	if len(s.TopItems) != 3 {
		t.Errorf("TopItems = %d, want 3", len(s.TopItems))
	}
	if s.Remaining != 3 {
		t.Errorf("Remaining = %d, want 3 (6 excluded - 3 shown)", s.Remaining)
	}
}
