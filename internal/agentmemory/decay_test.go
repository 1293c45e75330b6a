package agentmemory

import (
	"math"
	"testing"
	"time"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/graph"
)

func TestDecayEngine_EffectiveImportance_NoLastAccess(t *testing.T) {
	t.Parallel()

	d := NewDecayEngine(DefaultDecayConfig(), nil)
	got := d.EffectiveImportance(3, nil, 0, 0)
	if got != 3 {
		t.Errorf("EffectiveImportance = %v, want 3 (no decay without a last-accessed timestamp)", got)
	}

	got = d.EffectiveImportance(0.01, nil, 0, 0)
	if got != DefaultDecayConfig().MinImportance {
		t.Errorf("EffectiveImportance = %v, want clamped to min_importance", got)
	}
}

func TestDecayEngine_EffectiveImportance_HalfLifeElapsed(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	cfg := DecayConfig{HalfLifeHours: 168, ImportanceModulation: false, AccessModulation: false, MinImportance: 0}
	d := NewDecayEngine(cfg, fixedClock(now))

	last := now.Add(-168 * time.Hour)
	got := d.EffectiveImportance(8, &last, 0, 0)
	want := 4.0 // exactly one half-life elapsed halves the base importance
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EffectiveImportance = %v, want %v", got, want)
	}
}

func TestDecayEngine_EffectiveImportance_AccessModulationStrengthens(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	cfg := DecayConfig{HalfLifeHours: 168, ImportanceModulation: false, AccessModulation: true, MinImportance: 0}
	d := NewDecayEngine(cfg, fixedClock(now))

	last := now.Add(-168 * time.Hour)
	got := d.EffectiveImportance(8, &last, 50, 3)
	// strength = 1 + 3*0.1 + 50/100 = 1.8; factor = 0.5
	want := 8 * 0.5 * 1.8
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("EffectiveImportance = %v, want %v", got, want)
	}
}

func TestDecayEngine_Reinforce(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	d := NewDecayEngine(DefaultDecayConfig(), fixedClock(now))

	delta := d.Reinforce(2, 0.95, 1, 0.2)
	if !delta.LastAccessedAt.Equal(now) {
		t.Errorf("LastAccessedAt = %v, want %v", delta.LastAccessedAt, now)
	}
	if delta.ConfirmationCount != 3 {
		t.Errorf("ConfirmationCount = %d, want 3", delta.ConfirmationCount)
	}
	if delta.Confidence != 1.0 {
		t.Errorf("Confidence = %v, want capped at 1.0", delta.Confidence)
	}
}

func TestDecayEngine_Forget(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	bus := events.New()
	store := graph.New(t.TempDir()+"/graph.jsonl", bus)

	old := now.Add(-240 * time.Hour)
	if err := store.AppendEntity(&graph.Entity{
		Name: "Stale Note", EntityType: "note", Importance: 1, CreatedAt: old, LastModified: old,
	}); err != nil {
		t.Fatalf("AppendEntity: %v", err)
	}
	if err := store.AppendEntity(&graph.Entity{
		Name: "Pinned Note", EntityType: "note", Importance: 9, CreatedAt: old, LastModified: old, Tags: []string{"pinned"},
	}); err != nil {
		t.Fatalf("AppendEntity: %v", err)
	}

	cfg := DecayConfig{HalfLifeHours: 168, ImportanceModulation: true, AccessModulation: true, MinImportance: 0.1}
	d := NewDecayEngine(cfg, fixedClock(now))

	candidates, err := d.Forget(store, ForgetOptions{
		EffectiveImportanceThreshold: 5,
		OlderThanHours:               100,
		ExcludeTags:                  []string{"PINNED"},
		DryRun:                       true,
	})
	if err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Name != "Stale Note" {
		t.Fatalf("candidates = %+v, want only Stale Note (Pinned Note excluded by tag)", candidates)
	}

	if _, err := store.GetByName("Stale Note"); err != nil {
		t.Fatalf("dry run must not remove entities: %v", err)
	}

	if _, err := d.Forget(store, ForgetOptions{
		EffectiveImportanceThreshold: 5,
		OlderThanHours:               100,
		ExcludeTags:                  []string{"pinned"},
	}); err != nil {
		t.Fatalf("Forget: %v", err)
	}
	if _, err := store.GetByName("Stale Note"); err == nil {
		t.Error("expected Stale Note to be removed after a non-dry-run sweep")
	}
	if _, err := store.GetByName("Pinned Note"); err != nil {
		t.Error("expected Pinned Note to survive (excluded by tag)")
	}
}
