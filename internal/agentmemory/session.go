package agentmemory

import (
	"context"
	"time"

	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/txn"
)

// EndSessionResult reports the outcome of ending a session.
type EndSessionResult struct {
	// Promoted lists the names of working memories moved to episodic.
	Promoted []string
}

// EndSession transitions the named session entity to status (completed or
// abandoned), stamps ended_at, and promotes every working memory scoped to
// that session to episodic: memory_type changes, expires_at is cleared,
// and promoted_from records the prior memory_type. All of it commits as
// one transaction through mgr, so a crash mid-promotion never leaves the
// session half-ended.
//
// "Candidate" is read here as every working memory whose session_id
// matches: no additional promotion threshold is named, and a session
// ending is itself the trigger.
func EndSession(ctx context.Context, store *graph.Store, mgr *txn.Manager, sessionID string, status graph.SessionStatus) (EndSessionResult, error) {
	session, err := store.GetByName(sessionID)
	if err != nil {
		return EndSessionResult{}, err
	}

	if err := mgr.Begin(); err != nil {
		return EndSessionResult{}, err
	}

	now := time.Now().UTC()
	ops := []txn.Operation{{
		Kind:       txn.OpUpdateEntity,
		EntityName: session.Name,
		Patch: map[string]any{
			"status":   string(status),
			"ended_at": now,
		},
	}}

	var promoted []string
	for _, e := range store.All() {
		if e.MemoryType != graph.MemoryTypeWorking || e.SessionID != sessionID {
			continue
		}
		ops = append(ops, txn.Operation{
			Kind:       txn.OpUpdateEntity,
			EntityName: e.Name,
			Patch: map[string]any{
				"memory_type":   string(graph.MemoryTypeEpisodic),
				"expires_at":    nil,
				"promoted_from": string(graph.MemoryTypeWorking),
			},
		})
		promoted = append(promoted, e.Name)
	}

	for _, op := range ops {
		if err := mgr.Stage(op); err != nil {
			_ = mgr.Rollback()
			return EndSessionResult{}, err
		}
	}

	result, err := mgr.Commit(ctx, txn.CommitOptions{})
	if err != nil {
		return EndSessionResult{}, err
	}
	if !result.Success {
		return EndSessionResult{}, result.Err
	}

	return EndSessionResult{Promoted: promoted}, nil
}

// SessionChain walks the history of sessionID: the session itself, then
// its previous_session_id ancestor chain, then any related_session_ids
// whose own previous_session_id equals sessionID. This traversal is
// deliberately asymmetric (previous-session first, then one level of
// related siblings) rather than a symmetric graph walk over both fields,
// matching the order the source system visits them in. Cycles guard
// against malformed data; a session already visited is skipped.
func SessionChain(store *graph.Store, sessionID string) ([]*graph.Entity, error) {
	session, err := store.GetByName(sessionID)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{session.Name: true}
	chain := []*graph.Entity{session}

	for cur := session; cur.PreviousSessionID != ""; {
		prev, err := store.GetByName(cur.PreviousSessionID)
		if err != nil || visited[prev.Name] {
			break
		}
		visited[prev.Name] = true
		chain = append(chain, prev)
		cur = prev
	}

	for _, name := range session.RelatedSessionIDs {
		if visited[name] {
			continue
		}
		related, err := store.GetByName(name)
		if err != nil || related.PreviousSessionID != sessionID {
			continue
		}
		visited[name] = true
		chain = append(chain, related)
	}

	return chain, nil
}
