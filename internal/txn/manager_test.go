package txn

import (
	"context"
	"errors"
	"testing"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/kgerr"
)

func newTestManager(t *testing.T) (*Manager, *graph.Store, *[]events.Kind) {
	t.Helper()
	bus := events.New()
	store := graph.New(t.TempDir()+"/graph.jsonl", bus)
	var published []events.Kind
	store.Subscribe("watcher", func(ev events.Event) {
		published = append(published, ev.Kind)
	})
	return New(store, t.TempDir(), nil), store, &published
}

func TestManager_Commit_AppliesAndEmitsInOrder(t *testing.T) {
	t.Parallel()

	m, store, published := newTestManager(t)

	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Stage(Operation{Kind: OpCreateEntity, Entity: &graph.Entity{Name: "Alice", EntityType: "person"}}); err != nil {
		t.Fatalf("Stage create: %v", err)
	}
	if err := m.Stage(Operation{Kind: OpUpdateEntity, EntityName: "Alice", Patch: map[string]any{"importance": 8.0}}); err != nil {
		t.Fatalf("Stage update: %v", err)
	}

	result, err := m.Commit(context.Background(), CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !result.Success || result.AppliedCount != 2 {
		t.Fatalf("result = %+v, want Success with AppliedCount=2", result)
	}

	e, err := store.GetByName("Alice")
	if err != nil {
		t.Fatalf("GetByName after commit: %v", err)
	}
	if e.Importance != 8 {
		t.Errorf("Importance = %v, want 8", e.Importance)
	}

	if len(*published) != 2 || (*published)[0] != events.EntityCreated || (*published)[1] != events.EntityUpdated {
		t.Fatalf("published = %v, want [EntityCreated EntityUpdated] in staged order", *published)
	}
}

// TestManager_Commit_RollbackFiresNoEvents is the rollback scenario this
// package was flagged for lacking coverage on: a transaction that fails
// partway through must leave the graph untouched and must never let any
// subscriber (internal/lexindex among them) observe a change that didn't
// actually commit.
func TestManager_Commit_RollbackFiresNoEvents(t *testing.T) {
	t.Parallel()

	m, store, published := newTestManager(t)
	if err := store.AppendEntity(&graph.Entity{Name: "Alice", EntityType: "person"}); err != nil {
		t.Fatalf("seed AppendEntity: %v", err)
	}
	*published = nil // ignore the seed event

	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Stage(Operation{Kind: OpCreateEntity, Entity: &graph.Entity{Name: "Bob", EntityType: "person"}}); err != nil {
		t.Fatalf("Stage create Bob: %v", err)
	}
	// Duplicate name: this staged op fails mid-batch and must abort
	// the whole transaction.
	if err := m.Stage(Operation{Kind: OpCreateEntity, Entity: &graph.Entity{Name: "Alice", EntityType: "person"}}); err != nil {
		t.Fatalf("Stage duplicate Alice: %v", err)
	}

	result, err := m.Commit(context.Background(), CommitOptions{})
	if err == nil {
		t.Fatal("expected Commit to fail on duplicate entity")
	}
	if result.Success {
		t.Fatal("result.Success must be false on rollback")
	}
	if !errors.Is(err, kgerr.ErrDuplicateEntity) {
		t.Errorf("Commit err = %v, want ErrDuplicateEntity", err)
	}

	if _, err := store.GetByName("Bob"); err == nil {
		t.Fatal("Bob must not exist after a rolled-back transaction, even though its create op applied before the failing one")
	}
	if len(*published) != 0 {
		t.Fatalf("a rolled-back transaction must emit zero events, got %v", *published)
	}
	if m.State() != StateIdle {
		t.Errorf("State = %v, want StateIdle after rollback", m.State())
	}
}

func TestManager_Commit_DeleteEntityCascadesRelationEvents(t *testing.T) {
	t.Parallel()

	m, store, published := newTestManager(t)
	if err := store.AppendEntity(&graph.Entity{Name: "Alice", EntityType: "person"}); err != nil {
		t.Fatalf("seed Alice: %v", err)
	}
	if err := store.AppendEntity(&graph.Entity{Name: "Acme Corp", EntityType: "organization"}); err != nil {
		t.Fatalf("seed Acme Corp: %v", err)
	}
	if err := store.AppendRelation(&graph.Relation{From: "Alice", To: "Acme Corp", RelationType: "works_at"}); err != nil {
		t.Fatalf("seed relation: %v", err)
	}
	*published = nil

	if err := m.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := m.Stage(Operation{Kind: OpDeleteEntity, EntityName: "Alice"}); err != nil {
		t.Fatalf("Stage delete: %v", err)
	}
	result, err := m.Commit(context.Background(), CommitOptions{})
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want Success", result)
	}

	if len(*published) != 2 {
		t.Fatalf("published = %v, want [EntityDeleted RelationDeleted]", *published)
	}
	if (*published)[0] != events.EntityDeleted || (*published)[1] != events.RelationDeleted {
		t.Errorf("published = %v, want EntityDeleted then cascaded RelationDeleted", *published)
	}
}

func TestManager_Stage_RequiresActiveTransaction(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	err := m.Stage(Operation{Kind: OpCreateEntity, Entity: &graph.Entity{Name: "Alice", EntityType: "person"}})
	if !errors.Is(err, kgerr.ErrNoTransaction) {
		t.Errorf("Stage without Begin = %v, want ErrNoTransaction", err)
	}
}

func TestManager_Begin_RejectsConcurrentTransaction(t *testing.T) {
	t.Parallel()

	m, _, _ := newTestManager(t)
	if err := m.Begin(); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if err := m.Begin(); !errors.Is(err, kgerr.ErrTransactionActive) {
		t.Errorf("second Begin = %v, want ErrTransactionActive", err)
	}
}
