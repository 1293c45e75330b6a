package txn

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cortexkg/cortexkg/internal/kgerr"
)

// BatchOptions controls CommitBatch's validation and failure handling
//.
type BatchOptions struct {
	StopOnError           bool
	ValidateBeforeExecute bool
}

// OpResult is the outcome of one operation within a batch.
type OpResult struct {
	Index   int
	Success bool
	Err     error
}

// BatchResult aggregates a batch's outcome.
type BatchResult struct {
	Success           bool
	Results           []OpResult
	SuccessCount      int
	FailureCount      int
	FirstFailureIndex int
	Err               error
}

// CommitBatch runs ops as one batch transaction. With ValidateBeforeExecute
// it first simulates the whole batch against the current graph to report
// the first violation (and its index) without touching the store. With
// StopOnError it behaves like Commit: the first failure aborts and rolls
// back everything. Without StopOnError, operations are applied
// independently; failures are skipped and recorded, successes persist.
func (m *Manager) CommitBatch(ctx context.Context, ops []Operation, opts BatchOptions) (*BatchResult, error) {
	if opts.ValidateBeforeExecute {
		if idx, err := m.validateBatch(ops); err != nil {
			return &BatchResult{
				Success:           false,
				FirstFailureIndex: idx,
				Err:               fmt.Errorf("validate_before_execute: operation %d: %w", idx, err),
			}, err
		}
	}

	if err := m.Begin(); err != nil {
		return nil, err
	}

	if opts.StopOnError {
		for _, op := range ops {
			if err := m.Stage(op); err != nil {
				_ = m.Rollback()
				return nil, err
			}
		}
		res, err := m.Commit(ctx, CommitOptions{})
		br := &BatchResult{Success: res.Success, Err: err}
		if res.Success {
			br.SuccessCount = len(ops)
		} else {
			br.FailureCount = len(ops)
		}
		return br, err
	}

	return m.commitBatchBestEffort(ctx, ops)
}

// commitBatchBestEffort applies each operation independently: a single
// transient backup is taken, operations are applied one at a time
// (skipping failures), and the result is persisted once at the end
//.
func (m *Manager) commitBatchBestEffort(ctx context.Context, ops []Operation) (*BatchResult, error) {
	backupPath, err := m.backupGraphFile()
	if err != nil {
		m.finishLocked(StateIdle)
		return nil, fmt.Errorf("%w: batch backup: %v", kgerr.ErrStorageFailure, err)
	}

	br := &BatchResult{Results: make([]OpResult, 0, len(ops)), FirstFailureIndex: -1}
	for i, op := range ops {
		select {
		case <-ctx.Done():
			_ = m.restoreGraphFile(backupPath)
			_ = m.store.Load()
			m.finishLocked(StateIdle)
			return nil, kgerr.ErrOperationCancelled
		default:
		}

		err := applyOne(m.store, op)
		if err != nil {
			br.Results = append(br.Results, OpResult{Index: i, Success: false, Err: err})
			br.FailureCount++
			if br.FirstFailureIndex == -1 {
				br.FirstFailureIndex = i
			}
			continue
		}
		br.Results = append(br.Results, OpResult{Index: i, Success: true})
		br.SuccessCount++
	}

	if err := m.store.Save(); err != nil {
		_ = m.restoreGraphFile(backupPath)
		_ = m.store.Load()
		m.finishLocked(StateIdle)
		return nil, fmt.Errorf("%w: batch save: %v", kgerr.ErrStorageFailure, err)
	}
	_ = os.Remove(backupPath)
	m.finishLocked(StateIdle)

	br.Success = br.FailureCount == 0
	if !br.Success {
		br.Err = fmt.Errorf("batch: %d of %d operations failed, first at index %d", br.FailureCount, len(ops), br.FirstFailureIndex)
	}
	return br, nil
}

// validateBatch simulates ops against a pending-create/pending-delete
// set derived from the current graph, without mutating the store, and
// returns the index of the first violation.
func (m *Manager) validateBatch(ops []Operation) (int, error) {
	existing := make(map[string]bool)
	for _, e := range m.store.All() {
		existing[e.Name] = true
	}
	pendingCreate := make(map[string]bool)
	pendingDelete := make(map[string]bool)

	for i, op := range ops {
		switch op.Kind {
		case OpCreateEntity:
			name := op.Entity.Name
			if name == "" {
				return i, fmt.Errorf("%w: entity name is required", kgerr.ErrValidation)
			}
			if (existing[name] && !pendingDelete[name]) || pendingCreate[name] {
				return i, fmt.Errorf("%w: %q", kgerr.ErrDuplicateEntity, name)
			}
			pendingCreate[name] = true
			delete(pendingDelete, name)
		case OpUpdateEntity:
			if !existing[op.EntityName] && !pendingCreate[op.EntityName] {
				return i, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, op.EntityName)
			}
			if pendingDelete[op.EntityName] {
				return i, fmt.Errorf("%w: %q scheduled for deletion earlier in batch", kgerr.ErrEntityNotFound, op.EntityName)
			}
		case OpDeleteEntity:
			if !existing[op.EntityName] && !pendingCreate[op.EntityName] {
				return i, fmt.Errorf("%w: %q", kgerr.ErrEntityNotFound, op.EntityName)
			}
			pendingDelete[op.EntityName] = true
			delete(pendingCreate, op.EntityName)
		case OpCreateRelation:
			if strings.TrimSpace(op.Relation.From) == "" || strings.TrimSpace(op.Relation.To) == "" || strings.TrimSpace(op.Relation.RelationType) == "" {
				return i, fmt.Errorf("%w: relation requires from, to, relation_type", kgerr.ErrValidation)
			}
		case OpDeleteRelation:
			// Deferred existence check: relations may legitimately not
			// exist yet at validation time if created earlier in the
			// same batch; full verification happens at apply time.
		default:
			return i, fmt.Errorf("%w: unknown operation kind %q", kgerr.ErrValidation, op.Kind)
		}
	}
	return -1, nil
}
