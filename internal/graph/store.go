package graph

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/kgerr"
)

// Store is the durable, ordered mapping of entities and relations (C1).
// It is the graph's only source of truth; every other component treats
// its own state as a rebuildable cache keyed on entity names.
//
// Store is safe for concurrent use. The concurrency model assumes a
// single active transaction at a time (enforced by internal/txn), but
// reads (GetByName, GetByType, snapshotting for search) may happen
// concurrently with that transaction's preparation work, so internal
// state is still guarded by a mutex.
type Store struct {
	mu sync.RWMutex

	path string
	bus  *events.Bus

	entities       map[string]*Entity
	entitiesByType map[string][]string // lowercased type -> ordered entity names
	relations      map[RelationKey]*Relation
	relationsFrom  map[string][]RelationKey
	relationsTo    map[string][]RelationKey

	transactionActive bool
}

// New constructs a Store backed by the JSONL file at path, publishing
// mutation events on bus. path may not yet exist; the first Load treats a
// missing file as an empty graph.
func New(path string, bus *events.Bus) *Store {
	return &Store{
		path:           path,
		bus:            bus,
		entities:       make(map[string]*Entity),
		entitiesByType: make(map[string][]string),
		relations:      make(map[RelationKey]*Relation),
		relationsFrom:  make(map[string][]RelationKey),
		relationsTo:    make(map[string][]RelationKey),
	}
}

// Load reads the on-disk graph and rebuilds every derived index. It
// replaces all in-memory state.
func (s *Store) Load() error {
	entities, relations, err := readJSONL(s.path)
	if err != nil {
		return fmt.Errorf("%w: load %q: %v", kgerr.ErrStorageFailure, s.path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities = make(map[string]*Entity, len(entities))
	s.entitiesByType = make(map[string][]string)
	s.relations = make(map[RelationKey]*Relation, len(relations))
	s.relationsFrom = make(map[string][]RelationKey)
	s.relationsTo = make(map[string][]RelationKey)

	for _, e := range entities {
		s.indexEntityLocked(e)
	}
	for _, r := range relations {
		s.indexRelationLocked(r)
	}
	return nil
}

// Save persists the current in-memory graph with a whole-file replace,
// matching the atomicity the backup/rollback mechanism in internal/txn
// relies on.
func (s *Store) Save() error {
	s.mu.RLock()
	entities := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		entities = append(entities, e)
	}
	relations := make([]*Relation, 0, len(s.relations))
	for _, r := range s.relations {
		relations = append(relations, r)
	}
	s.mu.RUnlock()

	if err := writeJSONL(s.path, entities, relations); err != nil {
		return fmt.Errorf("%w: save %q: %v", kgerr.ErrStorageFailure, s.path, err)
	}
	return nil
}

// GetByName returns a deep copy of the named entity, or ErrEntityNotFound.
func (s *Store) GetByName(name string) (*Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, name)
	}
	return e.Clone(), nil
}

// GetByType returns deep copies of every entity whose type matches
// typ case-insensitively, in insertion order.
func (s *Store) GetByType(typ string) []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := s.entitiesByType[strings.ToLower(typ)]
	out := make([]*Entity, 0, len(names))
	for _, n := range names {
		if e, ok := s.entities[n]; ok {
			out = append(out, e.Clone())
		}
	}
	return out
}

// All returns deep copies of every entity. Used by components that need a
// full read snapshot (lexical/symbolic search, decay sweeps).
func (s *Store) All() []*Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entity, 0, len(s.entities))
	for _, e := range s.entities {
		out = append(out, e.Clone())
	}
	return out
}

// AppendEntity adds a new entity. Returns ErrDuplicateEntity if the name
// is already present.
func (s *Store) AppendEntity(e *Entity) error {
	if e.Name == "" {
		return fmt.Errorf("%w: entity name is required", kgerr.ErrValidation)
	}
	if e.Importance == 0 {
		e.Importance = 5
	}
	if e.Importance < 0 || e.Importance > 10 {
		return fmt.Errorf("%w: importance %v out of [0,10]", kgerr.ErrInvalidImportance, e.Importance)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[e.Name]; ok {
		return fmt.Errorf("%w: %q", kgerr.ErrDuplicateEntity, e.Name)
	}
	if e.ParentID != "" {
		if err := s.checkParentCycleLocked(e.Name, e.ParentID); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.LastModified = now

	clone := e.Clone()
	s.indexEntityLocked(clone)

	s.publish(events.Event{Kind: events.EntityCreated, EntityName: clone.Name, Entity: clone.Clone()})
	return nil
}

// AppendRelation adds a new relation. Returns ErrDuplicateRelation if the
// (from, to, type) key already exists. Relations may reference entities
// that do not yet exist (deferred referential integrity).
func (s *Store) AppendRelation(r *Relation) error {
	if r.From == "" || r.To == "" || r.RelationType == "" {
		return fmt.Errorf("%w: relation requires from, to, relation_type", kgerr.ErrValidation)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := r.Key()
	if _, ok := s.relations[key]; ok {
		return fmt.Errorf("%w: %s -[%s]-> %s", kgerr.ErrDuplicateRelation, r.From, r.RelationType, r.To)
	}

	now := time.Now().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.LastModified = now

	clone := r.Clone()
	s.indexRelationLocked(clone)

	s.publish(events.Event{Kind: events.RelationCreated, Relation: clone.Clone(), From: r.From, To: r.To, RelationType: r.RelationType})
	return nil
}

// UpdateEntity applies patch (a map of field name to new value) to the
// named entity, sanitizing keys that collide with reserved
// object-prototype names (prototype-pollution guard) before merging. It
// returns the sanitized patch alongside the updated entity so a caller
// publishing the matching EntityUpdated event later (internal/txn, once
// a transaction's mutated clone has been installed) can reuse the exact
// patch this method actually applied.
func (s *Store) UpdateEntity(name string, patch map[string]any) (*Entity, map[string]any, error) {
	sanitized := sanitizePatch(patch)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, name)
	}
	updated := e.Clone()

	if v, ok := sanitized["parent_id"]; ok {
		newParent, _ := v.(string)
		if newParent != "" {
			if err := s.checkParentCycleLocked(name, newParent); err != nil {
				return nil, nil, err
			}
		}
		updated.ParentID = newParent
	}
	if v, ok := sanitized["entity_type"]; ok {
		if str, ok := v.(string); ok {
			updated.EntityType = str
		}
	}
	if v, ok := sanitized["importance"]; ok {
		if f, ok := toFloat(v); ok {
			if f < 0 || f > 10 {
				return nil, nil, fmt.Errorf("%w: importance %v out of [0,10]", kgerr.ErrInvalidImportance, f)
			}
			updated.Importance = f
		}
	}
	if v, ok := sanitized["tags"]; ok {
		if tags, ok := toStringSlice(v); ok {
			lowered := make([]string, len(tags))
			for i, t := range tags {
				lowered[i] = strings.ToLower(t)
			}
			updated.Tags = lowered
		}
	}
	if v, ok := sanitized["observations"]; ok {
		if obs, ok := toStringSlice(v); ok {
			updated.Observations = dedupObservations(obs)
		}
	}
	if v, ok := sanitized["metadata"]; ok {
		if m, ok := v.(map[string]any); ok {
			updated.Metadata = m
		}
	}
	if v, ok := sanitized["memory_type"]; ok {
		if str, ok := v.(string); ok {
			updated.MemoryType = MemoryType(str)
		}
	}
	if v, ok := sanitized["confidence"]; ok {
		if f, ok := toFloat(v); ok {
			if f > 1 {
				f = 1
			}
			updated.Confidence = f
		}
	}
	if v, ok := sanitized["access_count"]; ok {
		if f, ok := toFloat(v); ok {
			updated.AccessCount = int(f)
		}
	}
	if v, ok := sanitized["confirmation_count"]; ok {
		if f, ok := toFloat(v); ok {
			updated.ConfirmationCount = int(f)
		}
	}
	if v, ok := sanitized["last_accessed_at"]; ok {
		if v == nil {
			updated.LastAccessedAt = nil
		} else if t, ok := v.(time.Time); ok {
			updated.LastAccessedAt = &t
		}
	}
	if v, ok := sanitized["expires_at"]; ok {
		if v == nil {
			updated.ExpiresAt = nil
		} else if t, ok := v.(time.Time); ok {
			updated.ExpiresAt = &t
		}
	}
	if v, ok := sanitized["promoted_from"]; ok {
		if str, ok := v.(string); ok {
			updated.PromotedFrom = MemoryType(str)
		}
	}
	if v, ok := sanitized["status"]; ok {
		if str, ok := v.(string); ok {
			updated.Status = SessionStatus(str)
		}
	}
	if v, ok := sanitized["ended_at"]; ok {
		if v == nil {
			updated.EndedAt = nil
		} else if t, ok := v.(time.Time); ok {
			updated.EndedAt = &t
		}
	}
	if v, ok := sanitized["memory_count"]; ok {
		if f, ok := toFloat(v); ok {
			updated.MemoryCount = int(f)
		}
	}
	if v, ok := sanitized["previous_session_id"]; ok {
		if str, ok := v.(string); ok {
			updated.PreviousSessionID = str
		}
	}
	if v, ok := sanitized["related_session_ids"]; ok {
		if ids, ok := toStringSlice(v); ok {
			updated.RelatedSessionIDs = ids
		}
	}

	updated.LastModified = time.Now().UTC()

	s.unindexEntityLocked(e)
	s.indexEntityLocked(updated)

	s.publish(events.Event{Kind: events.EntityUpdated, EntityName: name, Entity: updated.Clone(), Patch: sanitized})
	return updated.Clone(), sanitized, nil
}

// AddObservations appends new observations (deduplicated, order
// preserved) to the named entity and emits ObservationAdded.
func (s *Store) AddObservations(name string, obs []string) (*Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, name)
	}
	updated := e.Clone()
	updated.Observations = dedupObservations(append(append([]string{}, updated.Observations...), obs...))
	updated.LastModified = time.Now().UTC()

	s.unindexEntityLocked(e)
	s.indexEntityLocked(updated)

	s.publish(events.Event{Kind: events.ObservationAdded, EntityName: name, Entity: updated.Clone(), Observations: obs})
	return updated.Clone(), nil
}

// DeleteEntity removes the named entity and, in the same atomic step,
// every relation referencing it as From or To. It returns the keys of
// every relation cascaded away, so a caller applying this against a
// detached clone (internal/txn, via CloneForMutation) can reconstruct
// the matching RelationDeleted events once the mutation is installed.
func (s *Store) DeleteEntity(name string) ([]RelationKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, name)
	}

	var cascaded []RelationKey
	for _, k := range s.relationsFrom[name] {
		cascaded = append(cascaded, k)
	}
	for _, k := range s.relationsTo[name] {
		cascaded = append(cascaded, k)
	}
	for _, k := range cascaded {
		delete(s.relations, k)
	}
	s.relationsFrom[name] = nil
	s.relationsTo[name] = nil

	s.unindexEntityLocked(e)
	delete(s.entities, name)

	s.publish(events.Event{Kind: events.EntityDeleted, EntityName: name})
	for _, k := range cascaded {
		s.publish(events.Event{Kind: events.RelationDeleted, From: k.From, To: k.To, RelationType: k.RelationType})
	}
	return cascaded, nil
}

// DeleteRelation removes the single relation matching the key.
func (s *Store) DeleteRelation(from, to, relType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := RelationKey{From: from, To: to, RelationType: relType}
	if _, ok := s.relations[key]; !ok {
		return fmt.Errorf("%w: %s -[%s]-> %s", kgerr.ErrRelationNotFound, from, relType, to)
	}
	delete(s.relations, key)
	s.relationsFrom[from] = removeKey(s.relationsFrom[from], key)
	s.relationsTo[to] = removeKey(s.relationsTo[to], key)

	s.publish(events.Event{Kind: events.RelationDeleted, From: from, To: to, RelationType: relType})
	return nil
}

// GetRelation returns a deep copy of the relation matching the key, or
// ErrRelationNotFound.
func (s *Store) GetRelation(from, to, relType string) (*Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.relations[RelationKey{From: from, To: to, RelationType: relType}]
	if !ok {
		return nil, fmt.Errorf("%w: %s -[%s]-> %s", kgerr.ErrRelationNotFound, from, relType, to)
	}
	return r.Clone(), nil
}

// RelationsFrom and RelationsTo return deep copies of relations indexed
// by source/target entity name respectively.
func (s *Store) RelationsFrom(name string) []*Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.relationsFrom[name]
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		if r, ok := s.relations[k]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

func (s *Store) RelationsTo(name string) []*Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.relationsTo[name]
	out := make([]*Relation, 0, len(keys))
	for _, k := range keys {
		if r, ok := s.relations[k]; ok {
			out = append(out, r.Clone())
		}
	}
	return out
}

// Path returns the on-disk path backing this store.
func (s *Store) Path() string {
	return s.path
}

// Subscribe registers a named handler on the store's event bus.
func (s *Store) Subscribe(name string, h events.Handler) {
	s.bus.Subscribe(name, h)
}

// Bus returns the store's change-bus, or nil for a detached clone
// returned by CloneForMutation.
func (s *Store) Bus() *events.Bus {
	return s.bus
}

// CloneForMutation returns a detached, busless deep copy of the store
// backed by the same on-disk path: internal/txn applies a batch of
// staged operations against this copy, so a failed or not-yet-persisted
// operation can never publish a change event or otherwise become
// visible to the live store's readers and subscribers. The clone's
// AppendEntity/UpdateEntity/DeleteEntity/etc. calls are the same
// methods the live store uses; they simply no-op on publish because the
// clone's bus is nil.
func (s *Store) CloneForMutation() *Store {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &Store{
		path:           s.path,
		bus:            nil,
		entities:       make(map[string]*Entity, len(s.entities)),
		entitiesByType: make(map[string][]string, len(s.entitiesByType)),
		relations:      make(map[RelationKey]*Relation, len(s.relations)),
		relationsFrom:  make(map[string][]RelationKey, len(s.relationsFrom)),
		relationsTo:    make(map[string][]RelationKey, len(s.relationsTo)),
	}
	for name, e := range s.entities {
		clone.entities[name] = e.Clone()
	}
	for typ, names := range s.entitiesByType {
		clone.entitiesByType[typ] = append([]string(nil), names...)
	}
	for key, r := range s.relations {
		clone.relations[key] = r.Clone()
	}
	for name, keys := range s.relationsFrom {
		clone.relationsFrom[name] = append([]RelationKey(nil), keys...)
	}
	for name, keys := range s.relationsTo {
		clone.relationsTo[name] = append([]RelationKey(nil), keys...)
	}
	return clone
}

// InstallMutated swaps the live store's entity and relation state for
// mutated's, the step internal/txn takes only once the mutated state has
// already been durably persisted (phase d of Commit). It performs no
// event publishing of its own; the caller emits events afterward, once
// the swap below is visible to readers.
func (s *Store) InstallMutated(mutated *Store) {
	mutated.mu.RLock()
	entities := mutated.entities
	entitiesByType := mutated.entitiesByType
	relations := mutated.relations
	relationsFrom := mutated.relationsFrom
	relationsTo := mutated.relationsTo
	mutated.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entities = entities
	s.entitiesByType = entitiesByType
	s.relations = relations
	s.relationsFrom = relationsFrom
	s.relationsTo = relationsTo
}

// SetTransactionActive is used exclusively by internal/txn to enforce
// "at most one transaction Active at a time". It returns
// ErrTransactionActive if a transaction is already active when active is
// true.
func (s *Store) SetTransactionActive(active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if active {
		if s.transactionActive {
			return kgerr.ErrTransactionActive
		}
		s.transactionActive = true
		return nil
	}
	s.transactionActive = false
	return nil
}

// checkParentCycleLocked walks ancestors starting at newParent and fails
// if name itself is reached.
// Caller must hold s.mu.
func (s *Store) checkParentCycleLocked(name, newParent string) error {
	seen := map[string]bool{name: true}
	cur := newParent
	for cur != "" {
		if seen[cur] {
			return fmt.Errorf("%w: setting parent_id of %q to %q would create a cycle", kgerr.ErrCycleDetected, name, newParent)
		}
		seen[cur] = true
		next, ok := s.entities[cur]
		if !ok {
			break
		}
		cur = next.ParentID
	}
	return nil
}

func (s *Store) indexEntityLocked(e *Entity) {
	s.entities[e.Name] = e
	lt := strings.ToLower(e.EntityType)
	s.entitiesByType[lt] = append(s.entitiesByType[lt], e.Name)
}

func (s *Store) unindexEntityLocked(e *Entity) {
	lt := strings.ToLower(e.EntityType)
	names := s.entitiesByType[lt]
	for i, n := range names {
		if n == e.Name {
			s.entitiesByType[lt] = append(names[:i], names[i+1:]...)
			break
		}
	}
}

func (s *Store) indexRelationLocked(r *Relation) {
	key := r.Key()
	s.relations[key] = r
	s.relationsFrom[r.From] = append(s.relationsFrom[r.From], key)
	s.relationsTo[r.To] = append(s.relationsTo[r.To], key)
}

func (s *Store) publish(ev events.Event) {
	if s.bus != nil {
		s.bus.Publish(ev)
	}
}

func removeKey(keys []RelationKey, target RelationKey) []RelationKey {
	for i, k := range keys {
		if k == target {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

func dedupObservations(obs []string) []string {
	seen := make(map[string]bool, len(obs))
	out := make([]string, 0, len(obs))
	for _, o := range obs {
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

// reservedPatchKeys mirrors JavaScript's dangerous object-prototype key
// names, dropped defensively even though Go maps have no prototype
// chain to pollute.
var reservedPatchKeys = map[string]bool{
	"__proto__":   true,
	"constructor": true,
	"prototype":   true,
}

func sanitizePatch(patch map[string]any) map[string]any {
	out := make(map[string]any, len(patch))
	for k, v := range patch {
		if reservedPatchKeys[k] {
			continue
		}
		out[k] = v
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
