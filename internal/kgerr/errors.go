// Package kgerr defines the sentinel error taxonomy shared by every
// component: one errors.New sentinel per failure mode, wrapped with
// %w and compared with errors.Is at call sites.
package kgerr

import "errors"

var (
	ErrEntityNotFound          = errors.New("entity not found")
	ErrRelationNotFound        = errors.New("relation not found")
	ErrDuplicateEntity         = errors.New("duplicate entity")
	ErrDuplicateRelation       = errors.New("duplicate relation")
	ErrValidation              = errors.New("validation failed")
	ErrCycleDetected           = errors.New("cycle detected")
	ErrInvalidImportance       = errors.New("invalid importance")
	ErrInsufficientEntities    = errors.New("insufficient entities")
	ErrTransactionActive       = errors.New("transaction already active")
	ErrNoTransaction           = errors.New("no active transaction")
	ErrStorageFailure          = errors.New("storage failure")
	ErrImportFailure           = errors.New("import failure")
	ErrExportFailure           = errors.New("export failure")
	ErrOperationCancelled      = errors.New("operation cancelled")
	ErrIndexStale              = errors.New("index stale")
	ErrManualRecoveryRequired  = errors.New("manual recovery required")
)

// ManualRecoveryError wraps ErrManualRecoveryRequired with the path of the
// retained backup so the caller can act on it.
type ManualRecoveryError struct {
	BackupPath string
	Cause      error
}

func (e *ManualRecoveryError) Error() string {
	return "manual recovery required: backup retained at " + e.BackupPath + ": " + e.Cause.Error()
}

func (e *ManualRecoveryError) Unwrap() error {
	return ErrManualRecoveryRequired
}
