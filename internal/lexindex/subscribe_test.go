package lexindex

import (
	"testing"

	"github.com/cortexkg/cortexkg/internal/events"
)

func TestIndex_Subscribe_TracksGraphMutations(t *testing.T) {
	t.Parallel()

	bus := events.New()
	idx := New()
	texts := map[string]string{
		"Alice": "hiking mountains",
	}
	idx.Subscribe(bus, "lexindex", func(name string) (string, bool) {
		text, ok := texts[name]
		return text, ok
	})

	bus.Publish(events.Event{Kind: events.EntityCreated, EntityName: "Alice"})
	if idx.DocumentCount() != 1 {
		t.Fatalf("DocumentCount after EntityCreated = %d, want 1", idx.DocumentCount())
	}

	texts["Alice"] = "hiking trails"
	bus.Publish(events.Event{Kind: events.EntityUpdated, EntityName: "Alice"})
	if text, _ := idx.DocumentText("Alice"); text != "hiking trails" {
		t.Fatalf("DocumentText after EntityUpdated = %q, want %q", text, "hiking trails")
	}

	bus.Publish(events.Event{Kind: events.EntityDeleted, EntityName: "Alice"})
	if idx.DocumentCount() != 0 {
		t.Fatalf("DocumentCount after EntityDeleted = %d, want 0", idx.DocumentCount())
	}
}
