// Package graph implements the durable entity/relation graph store (the
// system's only source of truth) and its O(1) derived lookup indexes.
package graph

import "time"

// MemoryType tags an Entity as part of the agent-memory surface.
// Zero value means the entity carries no agent-memory fields.
type MemoryType string

const (
	MemoryTypeNone      MemoryType = ""
	MemoryTypeWorking   MemoryType = "working"
	MemoryTypeEpisodic  MemoryType = "episodic"
	MemoryTypeSemantic  MemoryType = "semantic"
	MemoryTypeProcedural MemoryType = "procedural"
)

// Visibility controls cross-session sharing of an agent memory.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

// SessionStatus is the lifecycle state of a Session entity.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionAbandoned SessionStatus = "abandoned"
)

// Entity is a named, typed node in the graph. The base fields apply to
// every entity; the MemoryType/Session fields are present only when the
// entity participates in the agent-memory or session surfaces.
type Entity struct {
	Name         string         `json:"name"`
	EntityType   string         `json:"entity_type"`
	Observations []string       `json:"observations"`
	Tags         []string       `json:"tags,omitempty"`
	Importance   float64        `json:"importance"`
	CreatedAt    time.Time      `json:"created_at"`
	LastModified time.Time      `json:"last_modified"`
	ParentID     string         `json:"parent_id,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`

	// Agent-memory fields.
	MemoryType        MemoryType `json:"memory_type,omitempty"`
	SessionID         string     `json:"session_id,omitempty"`
	TaskID            string     `json:"task_id,omitempty"`
	AgentID           string     `json:"agent_id,omitempty"`
	AccessCount       int        `json:"access_count,omitempty"`
	LastAccessedAt    *time.Time `json:"last_accessed_at,omitempty"`
	Confidence        float64    `json:"confidence,omitempty"`
	ConfirmationCount int        `json:"confirmation_count,omitempty"`
	Visibility        Visibility `json:"visibility,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	PromotedFrom      MemoryType `json:"promoted_from,omitempty"`

	// Session fields (present when EntityType == "session").
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
	Status            SessionStatus `json:"status,omitempty"`
	MemoryCount       int           `json:"memory_count,omitempty"`
	PreviousSessionID string        `json:"previous_session_id,omitempty"`
	RelatedSessionIDs []string      `json:"related_session_ids,omitempty"`
}

// Clone returns a deep copy so callers can mutate freely without
// corrupting store-internal state.
func (e *Entity) Clone() *Entity {
	if e == nil {
		return nil
	}
	out := *e
	out.Observations = append([]string(nil), e.Observations...)
	out.Tags = append([]string(nil), e.Tags...)
	out.RelatedSessionIDs = append([]string(nil), e.RelatedSessionIDs...)
	if e.Metadata != nil {
		out.Metadata = make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			out.Metadata[k] = v
		}
	}
	if e.LastAccessedAt != nil {
		t := *e.LastAccessedAt
		out.LastAccessedAt = &t
	}
	if e.ExpiresAt != nil {
		t := *e.ExpiresAt
		out.ExpiresAt = &t
	}
	if e.StartedAt != nil {
		t := *e.StartedAt
		out.StartedAt = &t
	}
	if e.EndedAt != nil {
		t := *e.EndedAt
		out.EndedAt = &t
	}
	return &out
}

// DocumentText returns the text used by the lexical index: name,
// entity_type, and observations joined by spaces.
func (e *Entity) DocumentText() string {
	parts := make([]string, 0, len(e.Observations)+2)
	parts = append(parts, e.Name, e.EntityType)
	parts = append(parts, e.Observations...)
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += " "
		}
		out += p
	}
	return out
}

// Relation is a directed typed edge between two entity names, unique on
// (From, To, RelationType).
type Relation struct {
	From         string    `json:"from"`
	To           string    `json:"to"`
	RelationType string    `json:"relation_type"`
	CreatedAt    time.Time `json:"created_at"`
	LastModified time.Time `json:"last_modified"`
}

// Clone returns a shallow copy; Relation has no reference fields that
// need deep copying.
func (r *Relation) Clone() *Relation {
	if r == nil {
		return nil
	}
	out := *r
	return &out
}

// RelationKey is the uniqueness key for a relation.
type RelationKey struct {
	From, To, RelationType string
}

func (r *Relation) Key() RelationKey {
	return RelationKey{From: r.From, To: r.To, RelationType: r.RelationType}
}
