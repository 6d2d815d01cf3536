// Package staging implements the staged-transaction layer over the model
// graph: changesets, base snapshots with drift detection, virtual
// projection, and atomic multi-file commit with rollback.
package staging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/archstage/archstage/internal/validation"
)

// Error variables for staging operations.
var (
	ErrChangesetNotFound      = errors.New("changeset not found")
	ErrNoActiveChangeset      = errors.New("no active changeset")
	ErrChangesetActive        = errors.New("another changeset is already active")
	ErrInvalidChangesetState  = errors.New("operation invalid for changeset status")
	ErrConflictingChange      = errors.New("conflicting change in changeset")
	ErrNothingStaged          = errors.New("no staged records for element")
	ErrEmptyChangesetName     = errors.New("changeset name cannot be empty")
	ErrInvalidChangeRecord    = errors.New("invalid change record")
	ErrDrift                  = errors.New("base model drifted since changeset creation")
	ErrValidation             = errors.New("projected state failed validation")
	ErrPersistence            = errors.New("durable write failed")
	ErrChangesetLogCorrupt    = errors.New("changeset log corrupt")
	ErrChangesetMetaCorrupt   = errors.New("changeset metadata corrupt")
	ErrActivePointerCorrupt   = errors.New("active changeset pointer corrupt")
	ErrSnapshotDetailMissing  = errors.New("changeset snapshot detail missing")
	ErrCommitNothingToCommit  = errors.New("changeset has no staged changes")
	ErrChangesetAlreadyExists = errors.New("changeset directory already exists")
)

// DriftError reports which parts of the base model diverged from a
// changeset's recorded base snapshot. It is never a bare boolean: callers
// get the affected layers and element ids so the fix can be targeted.
type DriftError struct {
	ExpectedHash string
	ActualHash   string
	Layers       []string
	Elements     []string
}

func (e *DriftError) Error() string {
	if len(e.Elements) == 0 {
		return fmt.Sprintf("%v (hash %.12s -> %.12s)", ErrDrift, e.ExpectedHash, e.ActualHash)
	}

	return fmt.Sprintf("%v: layers [%s], elements [%s]",
		ErrDrift, strings.Join(e.Layers, ", "), strings.Join(e.Elements, ", "))
}

// Unwrap lets errors.Is(err, ErrDrift) work.
func (e *DriftError) Unwrap() error {
	return ErrDrift
}

// ValidationError carries every ERROR-severity finding that blocked a
// commit, not just the first one.
type ValidationError struct {
	Findings []validation.Finding
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Findings))
	for _, f := range e.Findings {
		messages = append(messages, f.String())
	}

	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(messages, "; "))
}

// Unwrap lets errors.Is(err, ErrValidation) work.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
