package graph

import (
	"errors"
	"testing"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/kgerr"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir()+"/graph.jsonl", events.New())
}

func TestStore_DeleteEntity_CascadesRelations(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Alice", "person")
	mustAppendEntity(t, s, "Acme Corp", "organization")
	mustAppendEntity(t, s, "Bob", "person")

	if err := s.AppendRelation(&Relation{From: "Alice", To: "Acme Corp", RelationType: "works_at"}); err != nil {
		t.Fatalf("AppendRelation: %v", err)
	}
	if err := s.AppendRelation(&Relation{From: "Bob", To: "Alice", RelationType: "knows"}); err != nil {
		t.Fatalf("AppendRelation: %v", err)
	}

	cascaded, err := s.DeleteEntity("Alice")
	if err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if len(cascaded) != 2 {
		t.Fatalf("cascaded = %+v, want 2 relation keys (one From, one To)", cascaded)
	}

	if _, err := s.GetRelation("Alice", "Acme Corp", "works_at"); !errors.Is(err, kgerr.ErrRelationNotFound) {
		t.Errorf("expected works_at relation to be gone, got err=%v", err)
	}
	if _, err := s.GetRelation("Bob", "Alice", "knows"); !errors.Is(err, kgerr.ErrRelationNotFound) {
		t.Errorf("expected knows relation to be gone, got err=%v", err)
	}
	if len(s.RelationsFrom("Alice")) != 0 || len(s.RelationsTo("Alice")) != 0 {
		t.Error("expected Alice's relation indexes to be emptied after cascade delete")
	}
}

func TestStore_DeleteEntity_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, err := s.DeleteEntity("nobody"); !errors.Is(err, kgerr.ErrEntityNotFound) {
		t.Errorf("DeleteEntity on missing entity = %v, want ErrEntityNotFound", err)
	}
}

func TestStore_AppendEntity_ParentCycleDetected(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Root", "folder")

	if err := s.AppendEntity(&Entity{Name: "Child", EntityType: "folder", ParentID: "Root"}); err != nil {
		t.Fatalf("AppendEntity Child: %v", err)
	}

	// Attempting to set Root's parent to Child would close the cycle
	// Root -> Child -> Root.
	_, _, err := s.UpdateEntity("Root", map[string]any{"parent_id": "Child"})
	if !errors.Is(err, kgerr.ErrCycleDetected) {
		t.Fatalf("UpdateEntity parent_id cycle = %v, want ErrCycleDetected", err)
	}

	// Self-parenting is the degenerate one-node cycle.
	if err := s.AppendEntity(&Entity{Name: "Self", EntityType: "folder", ParentID: "Self"}); !errors.Is(err, kgerr.ErrCycleDetected) {
		t.Fatalf("AppendEntity self-parent = %v, want ErrCycleDetected", err)
	}
}

func TestStore_UpdateEntity_SanitizesPrototypePollutionKeys(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Widget", "item")

	updated, sanitized, err := s.UpdateEntity("Widget", map[string]any{
		"__proto__":   map[string]any{"isAdmin": true},
		"constructor": "evil",
		"prototype":   "evil",
		"importance":  7.0,
	})
	if err != nil {
		t.Fatalf("UpdateEntity: %v", err)
	}
	if _, ok := sanitized["__proto__"]; ok {
		t.Error("sanitized patch still contains __proto__")
	}
	if _, ok := sanitized["constructor"]; ok {
		t.Error("sanitized patch still contains constructor")
	}
	if _, ok := sanitized["prototype"]; ok {
		t.Error("sanitized patch still contains prototype")
	}
	if updated.Importance != 7 {
		t.Errorf("Importance = %v, want 7 (the one legitimate field in the patch)", updated.Importance)
	}
}

func TestStore_UpdateEntity_NotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	if _, _, err := s.UpdateEntity("nobody", map[string]any{"importance": 1.0}); !errors.Is(err, kgerr.ErrEntityNotFound) {
		t.Errorf("UpdateEntity on missing entity = %v, want ErrEntityNotFound", err)
	}
}

func TestStore_UpdateEntity_ImportanceOutOfRange(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Widget", "item")
	if _, _, err := s.UpdateEntity("Widget", map[string]any{"importance": 11.0}); !errors.Is(err, kgerr.ErrInvalidImportance) {
		t.Errorf("UpdateEntity importance=11 = %v, want ErrInvalidImportance", err)
	}
}

// TestStore_CloneForMutation_IsDetachedAndBusless verifies the property
// internal/txn's commit protocol depends on: mutating a clone never
// publishes events and never touches the live store until explicitly
// installed.
func TestStore_CloneForMutation_IsDetachedAndBusless(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Alice", "person")

	var published []events.Kind
	s.Subscribe("watcher", func(ev events.Event) {
		published = append(published, ev.Kind)
	})

	clone := s.CloneForMutation()
	if clone.Bus() != nil {
		t.Fatal("CloneForMutation's Bus() must be nil")
	}

	if err := clone.AppendEntity(&Entity{Name: "Bob", EntityType: "person"}); err != nil {
		t.Fatalf("AppendEntity on clone: %v", err)
	}
	if _, err := clone.DeleteEntity("Alice"); err != nil {
		t.Fatalf("DeleteEntity on clone: %v", err)
	}

	if len(published) != 0 {
		t.Fatalf("mutating a detached clone must not publish events, got %v", published)
	}
	if _, err := s.GetByName("Bob"); err == nil {
		t.Fatal("live store must not see Bob before InstallMutated")
	}
	if _, err := s.GetByName("Alice"); err != nil {
		t.Fatal("live store must still have Alice before InstallMutated")
	}

	s.InstallMutated(clone)

	if len(published) != 0 {
		t.Fatalf("InstallMutated itself must not publish events, got %v", published)
	}
	if _, err := s.GetByName("Bob"); err != nil {
		t.Fatal("live store must see Bob after InstallMutated")
	}
	if _, err := s.GetByName("Alice"); err == nil {
		t.Fatal("live store must no longer have Alice after InstallMutated")
	}
}

func TestStore_GetRelation(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	mustAppendEntity(t, s, "Alice", "person")
	mustAppendEntity(t, s, "Acme Corp", "organization")
	if err := s.AppendRelation(&Relation{From: "Alice", To: "Acme Corp", RelationType: "works_at"}); err != nil {
		t.Fatalf("AppendRelation: %v", err)
	}

	r, err := s.GetRelation("Alice", "Acme Corp", "works_at")
	if err != nil {
		t.Fatalf("GetRelation: %v", err)
	}
	if r.From != "Alice" || r.To != "Acme Corp" {
		t.Errorf("GetRelation = %+v, want Alice -> Acme Corp", r)
	}

	if _, err := s.GetRelation("Alice", "Acme Corp", "owns"); !errors.Is(err, kgerr.ErrRelationNotFound) {
		t.Errorf("GetRelation unknown type = %v, want ErrRelationNotFound", err)
	}
}

func mustAppendEntity(t *testing.T, s *Store, name, entityType string) {
	t.Helper()
	if err := s.AppendEntity(&Entity{Name: name, EntityType: entityType}); err != nil {
		t.Fatalf("AppendEntity(%q): %v", name, err)
	}
}
