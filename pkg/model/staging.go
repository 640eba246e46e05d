package model

import (
	"fmt"
	"time"
)

// StagingOp is the kind of pending change a staging entry records.
type StagingOp string

const (
	// OpAdd introduces a path absent from the destination layer
	OpAdd StagingOp = "add"

	// OpModify replaces the content of an existing path
	OpModify StagingOp = "modify"

	// OpRemove deletes a path from the destination layer
	OpRemove StagingOp = "remove"
)

// Validate the operation tag
func (op StagingOp) Validate() error {
	switch op {
	case OpAdd, OpModify, OpRemove:
		return nil
	default:
		return fmt.Errorf("unknown staging operation %q", op)
	}
}

// StagingEntry is one pending change: a path bound to a destination layer,
// the content key of the staged blob (empty for removals) and the operation.
type StagingEntry struct {
	Path       string    `json:"path" yaml:"path"`
	Layer      Layer     `json:"layer" yaml:"layer"`
	ContentKey string    `json:"contentKey,omitempty" yaml:"contentKey,omitempty"`
	Op         StagingOp `json:"op" yaml:"op"`
	Timestamp  time.Time `json:"timestamp,omitempty" yaml:"timestamp,omitempty"`
	_          struct{}
}

// Validate a staging entry: removals carry no content key, everything else
// must carry one, and the destination layer must be versioned.
func (e StagingEntry) Validate() error {
	if e.Path == "" {
		return fmt.Errorf("staging entry has an empty path")
	}
	if err := e.Layer.Validate(); err != nil {
		return err
	}
	if !e.Layer.Versioned() {
		return fmt.Errorf("staging entry for %q targets non-versioned layer %s", e.Path, e.Layer)
	}
	if err := e.Op.Validate(); err != nil {
		return err
	}
	if e.Op == OpRemove {
		if e.ContentKey != "" {
			return fmt.Errorf("staging entry for %q removes the path but carries content", e.Path)
		}
		return nil
	}
	if e.ContentKey == "" {
		return fmt.Errorf("staging entry for %q carries no content key", e.Path)
	}
	return nil
}

// StagingIndexDescriptor is the persisted form of the staging index:
// entries in lexicographic path order.
type StagingIndexDescriptor struct {
	Entries []StagingEntry `json:"entries" yaml:"entries"`
	_       struct{}
}
