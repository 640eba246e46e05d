// Package status declares errors shared by the core engine.
package status

import (
	"github.com/strataconf/strata/pkg/errors"
)

var (
	// ErrInvalidLayer indicates an operation addressed a layer it cannot
	// work with (e.g. merging or committing to a non-versioned layer).
	// Recovery: address one of the seven versioned layers.
	ErrInvalidLayer = errors.New("invalid layer for this operation")

	// ErrNothingToCommit indicates the staging index is empty
	ErrNothingToCommit = errors.New("nothing staged to commit")

	// ErrStagedContentMissing indicates a staged entry points at a blob
	// the object store no longer holds.
	// Recovery: restage the path.
	ErrStagedContentMissing = errors.New("staged content missing from object store")

	// ErrPartiallyApplied indicates a commit lost a ref race and its
	// best-effort unwind also failed, leaving some refs moved and some not.
	// Recovery: run recovery against the retained journal entry.
	ErrPartiallyApplied = errors.New("transaction partially applied")

	// ErrDetached indicates the workspace drifted from the recorded
	// materialization and destructive operations are refused.
	// Recovery: re-materialize the workspace, or pass the explicit override.
	ErrDetached = errors.New("workspace detached from its recorded state")
)
