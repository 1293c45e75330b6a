// Package txn implements the Transaction Manager (C2): stage operations,
// back up the persisted graph, apply them atomically, and roll back on
// any failure. Grounded on internal/resilience's state-machine discipline
// and internal/config/loader.go's errors.Join aggregation style, used
// here to report a failed rollback's cause together with its restore error.
package txn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cortexkg/cortexkg/internal/events"
	"github.com/cortexkg/cortexkg/internal/graph"
	"github.com/cortexkg/cortexkg/internal/kgerr"
)

// State is the Transaction Manager's lifecycle state.
type State string

const (
	StateIdle        State = "idle"
	StateActive      State = "active"
	StateCommitting  State = "committing"
	StateRollingBack State = "rolling_back"
)

// OpKind identifies a staged operation's shape.
type OpKind string

const (
	OpCreateEntity   OpKind = "create_entity"
	OpUpdateEntity   OpKind = "update_entity"
	OpDeleteEntity   OpKind = "delete_entity"
	OpCreateRelation OpKind = "create_relation"
	OpDeleteRelation OpKind = "delete_relation"
)

// Operation is one staged mutation.
type Operation struct {
	Kind OpKind

	Entity     *graph.Entity
	EntityName string
	Patch      map[string]any

	Relation               *graph.Relation
	From, To, RelationType string
}

// Progress is delivered via CommitOptions.OnProgress, throttled to
// ProgressInterval with 0% and 100% always emitted.
type Progress struct {
	Phase   string
	Percent int
}

// CommitOptions carries the cancellation signal and progress reporting
// knobs every long-running operation accepts.
type CommitOptions struct {
	OnProgress       func(Progress)
	ProgressInterval time.Duration
}

// CommitResult reports the outcome of Commit.
type CommitResult struct {
	Success        bool
	RolledBack     bool
	AppliedCount   int
	Err            error
}

// Manager drives one graph.Store through begin/stage/commit/rollback. A
// Manager enforces that at most one transaction is Active system-wide by
// delegating to Store.SetTransactionActive.
type Manager struct {
	mu        sync.Mutex
	state     State
	store     *graph.Store
	staged    []Operation
	backupDir string
	logger    *slog.Logger
}

// New constructs a Manager over store, using backupDir to stash the
// transient pre-commit backup used for rollback.
func New(store *graph.Store, backupDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{state: StateIdle, store: store, backupDir: backupDir, logger: logger}
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin asserts no active transaction and transitions Idle -> Active.
func (m *Manager) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateIdle {
		return kgerr.ErrTransactionActive
	}
	if err := m.store.SetTransactionActive(true); err != nil {
		return err
	}
	m.state = StateActive
	m.staged = nil
	return nil
}

// Stage appends op to the pending operation list. Operations staged after
// Active has been left are rejected.
func (m *Manager) Stage(op Operation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return kgerr.ErrNoTransaction
	}
	m.staged = append(m.staged, op)
	return nil
}

// Commit runs the six-phase protocol: backup, clone, apply-in-order,
// persist, delete backup, emit events. Phases (a) through (e) each start
// at a cancellation checkpoint; events are emitted once the backup is
// deleted, without a further check.
func (m *Manager) Commit(ctx context.Context, opts CommitOptions) (*CommitResult, error) {
	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return nil, kgerr.ErrNoTransaction
	}
	staged := m.staged
	m.state = StateCommitting
	m.mu.Unlock()

	var lastReport time.Time
	report := func(phase string, pct int) {
		if opts.OnProgress == nil {
			return
		}
		now := time.Now()
		if pct != 0 && pct != 100 && opts.ProgressInterval > 0 && now.Sub(lastReport) < opts.ProgressInterval {
			return
		}
		lastReport = now
		opts.OnProgress(Progress{Phase: phase, Percent: pct})
	}
	report("begin", 0)

	checkpoint := func() error {
		select {
		case <-ctx.Done():
			return kgerr.ErrOperationCancelled
		default:
			return nil
		}
	}

	result := &CommitResult{}

	// (a) create backup of current persisted state.
	if err := checkpoint(); err != nil {
		return m.cancelToRollback(err, result)
	}
	backupPath, err := m.backupGraphFile()
	if err != nil {
		m.finishLocked(StateIdle)
		result.Err = fmt.Errorf("%w: backup: %v", kgerr.ErrStorageFailure, err)
		return result, result.Err
	}
	report("backup", 15)

	// (b) clone the live graph into a detached scratch copy. Every staged
	// operation below applies against this clone, not the live store, so
	// nothing becomes visible to readers or subscribers (internal/lexindex
	// among them) until persist has actually succeeded.
	if err := checkpoint(); err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	mutation := m.store.CloneForMutation()

	// (c) apply staged ops against the clone, in order, enforcing
	// invariants, stopping at the first failure.
	if err := checkpoint(); err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	outcomes, applied, err := m.applyStaged(mutation, staged)
	result.AppliedCount = applied
	if err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	report("apply", 60)

	// (d) persist the mutated clone (it shares the live store's on-disk
	// path).
	if err := checkpoint(); err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	if err := mutation.Save(); err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	report("persist", 85)

	// Persist succeeded: install the mutated state into the live store.
	// Only from this point on is the committed state visible to readers.
	m.store.InstallMutated(mutation)

	// (e) delete backup.
	if err := checkpoint(); err != nil {
		return m.rollbackAfterBackup(backupPath, err, result)
	}
	_ = os.Remove(backupPath)
	report("cleanup", 95)

	// (f) emit events now that the live store reflects the committed
	// state, in staged order.
	m.emitEvents(staged, outcomes)

	m.finishLocked(StateIdle)
	result.Success = true
	report("done", 100)
	return result, nil
}

// Rollback aborts the active transaction without attempting any staged
// mutation (used when a caller decides not to commit at all).
func (m *Manager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive {
		return kgerr.ErrNoTransaction
	}
	m.state = StateRollingBack
	m.staged = nil
	m.state = StateIdle
	_ = m.store.SetTransactionActive(false)
	return nil
}

func (m *Manager) cancelToRollback(cause error, result *CommitResult) (*CommitResult, error) {
	m.finishLocked(StateIdle)
	result.Err = cause
	return result, cause
}

// rollbackAfterBackup restores the backup file over the live graph file
// and reloads the store. If the restore itself fails, the backup is
// retained and ManualRecoveryError is returned.
func (m *Manager) rollbackAfterBackup(backupPath string, cause error, result *CommitResult) (*CommitResult, error) {
	m.mu.Lock()
	m.state = StateRollingBack
	m.mu.Unlock()

	restoreErr := m.restoreGraphFile(backupPath)
	if restoreErr != nil {
		m.finishLocked(StateIdle)
		wrapped := &kgerr.ManualRecoveryError{BackupPath: backupPath, Cause: errors.Join(cause, restoreErr)}
		result.Err = wrapped
		result.RolledBack = false
		m.logger.Error("rollback failed, manual recovery required", "backup_path", backupPath, "cause", cause, "restore_err", restoreErr)
		return result, wrapped
	}
	if err := m.store.Load(); err != nil {
		m.finishLocked(StateIdle)
		wrapped := &kgerr.ManualRecoveryError{BackupPath: backupPath, Cause: err}
		result.Err = wrapped
		return result, wrapped
	}
	_ = os.Remove(backupPath)

	m.finishLocked(StateIdle)
	result.Success = false
	result.RolledBack = true
	result.Err = cause
	return result, cause
}

func (m *Manager) finishLocked(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = next
	m.staged = nil
	_ = m.store.SetTransactionActive(false)
}

// applyOutcome carries anything applyOne learns that emitEvents needs
// later and can no longer recompute once the clone has been discarded —
// currently only the relation keys an OpDeleteEntity cascaded away.
type applyOutcome struct {
	cascadedRelations []graph.RelationKey
	sanitizedPatch    map[string]any
}

// applyStaged applies each operation in stage order against mutation (a
// detached clone from graph.Store.CloneForMutation), stopping at the
// first failure. Because mutation has no bus, none of this publishes
// events; a rolled-back transaction is therefore invisible to the live
// store and its subscribers by construction.
func (m *Manager) applyStaged(mutation *graph.Store, staged []Operation) ([]applyOutcome, int, error) {
	outcomes := make([]applyOutcome, len(staged))
	applied := 0
	for i, op := range staged {
		outcome, err := applyOne(mutation, op)
		if err != nil {
			return outcomes, applied, fmt.Errorf("staged op %d (%s): %w", i, op.Kind, err)
		}
		outcomes[i] = outcome
		applied++
	}
	return outcomes, applied, nil
}

func applyOne(store *graph.Store, op Operation) (applyOutcome, error) {
	switch op.Kind {
	case OpCreateEntity:
		return applyOutcome{}, store.AppendEntity(op.Entity)
	case OpUpdateEntity:
		_, sanitized, err := store.UpdateEntity(op.EntityName, op.Patch)
		return applyOutcome{sanitizedPatch: sanitized}, err
	case OpDeleteEntity:
		cascaded, err := store.DeleteEntity(op.EntityName)
		return applyOutcome{cascadedRelations: cascaded}, err
	case OpCreateRelation:
		return applyOutcome{}, store.AppendRelation(op.Relation)
	case OpDeleteRelation:
		return applyOutcome{}, store.DeleteRelation(op.From, op.To, op.RelationType)
	default:
		return applyOutcome{}, fmt.Errorf("%w: unknown operation kind %q", kgerr.ErrValidation, op.Kind)
	}
}

// emitEvents publishes the change-bus event for each staged operation,
// in staged order, once Commit has installed the mutated state into the
// live store and persisted it. Entity/relation payloads are read back
// from the now-authoritative live store rather than carried over from
// the clone, so every event reflects exactly what a subsequent GetByName
// or GetRelation call would see.
func (m *Manager) emitEvents(staged []Operation, outcomes []applyOutcome) {
	bus := m.store.Bus()
	if bus == nil {
		return
	}
	for i, op := range staged {
		switch op.Kind {
		case OpCreateEntity:
			e, err := m.store.GetByName(op.Entity.Name)
			if err != nil {
				continue
			}
			bus.Publish(events.Event{Kind: events.EntityCreated, EntityName: e.Name, Entity: e})
		case OpUpdateEntity:
			e, err := m.store.GetByName(op.EntityName)
			if err != nil {
				continue
			}
			bus.Publish(events.Event{Kind: events.EntityUpdated, EntityName: op.EntityName, Entity: e, Patch: outcomes[i].sanitizedPatch})
		case OpDeleteEntity:
			bus.Publish(events.Event{Kind: events.EntityDeleted, EntityName: op.EntityName})
			for _, k := range outcomes[i].cascadedRelations {
				bus.Publish(events.Event{Kind: events.RelationDeleted, From: k.From, To: k.To, RelationType: k.RelationType})
			}
		case OpCreateRelation:
			r, err := m.store.GetRelation(op.Relation.From, op.Relation.To, op.Relation.RelationType)
			if err != nil {
				continue
			}
			bus.Publish(events.Event{Kind: events.RelationCreated, Relation: r, From: r.From, To: r.To, RelationType: r.RelationType})
		case OpDeleteRelation:
			bus.Publish(events.Event{Kind: events.RelationDeleted, From: op.From, To: op.To, RelationType: op.RelationType})
		}
	}
}

func (m *Manager) backupGraphFile() (string, error) {
	path := m.store.Path()
	data, err := os.ReadFile(path) //nolint:gosec // operator-controlled path
	if err != nil {
		if os.IsNotExist(err) {
			data = nil
		} else {
			return "", err
		}
	}
	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", err
	}
	backupPath := fmt.Sprintf("%s/txn-%s.jsonl.bak", m.backupDir, uuid.NewString())
	if err := os.WriteFile(backupPath, data, 0o644); err != nil { //nolint:gosec
		return "", err
	}
	return backupPath, nil
}

func (m *Manager) restoreGraphFile(backupPath string) error {
	data, err := os.ReadFile(backupPath) //nolint:gosec
	if err != nil {
		return err
	}
	return os.WriteFile(m.store.Path(), data, 0o644) //nolint:gosec
}
