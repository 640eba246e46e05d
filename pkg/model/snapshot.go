package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// ObjectKindTree tags serialized tree descriptors
	ObjectKindTree = "tree"

	// ObjectKindCommit tags serialized commit descriptors
	ObjectKindCommit = "commit"
)

// TreeEntryKind distinguishes blob children from subtree children.
type TreeEntryKind string

const (
	// EntryBlob points at file content
	EntryBlob TreeEntryKind = "blob"

	// EntryTree points at a nested tree object
	EntryTree TreeEntryKind = "tree"
)

// TreeEntry is one child of a tree object. Name is a single path segment:
// nested paths require building inner trees bottom-up.
type TreeEntry struct {
	Name string        `json:"name" yaml:"name"`
	Key  string        `json:"key" yaml:"key"`
	Kind TreeEntryKind `json:"type" yaml:"type"`
	_    struct{}
}

// TreeDescriptor is the serialized form of one tree object, entries in
// name order so identical trees hash identically.
type TreeDescriptor struct {
	Kind    string      `json:"kind" yaml:"kind"`
	Entries []TreeEntry `json:"entries" yaml:"entries"`
	_       struct{}
}

// NewTreeDescriptor builds a canonical tree descriptor: entries sorted by
// name, names validated as single segments, duplicates rejected.
func NewTreeDescriptor(entries []TreeEntry) (TreeDescriptor, error) {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i, e := range sorted {
		if e.Name == "" || strings.Contains(e.Name, "/") {
			return TreeDescriptor{}, fmt.Errorf("tree entry name %q is not a single path segment", e.Name)
		}
		if e.Key == "" {
			return TreeDescriptor{}, fmt.Errorf("tree entry %q has no key", e.Name)
		}
		if e.Kind != EntryBlob && e.Kind != EntryTree {
			return TreeDescriptor{}, fmt.Errorf("tree entry %q has unknown kind %q", e.Name, e.Kind)
		}
		if i > 0 && sorted[i-1].Name == e.Name {
			return TreeDescriptor{}, fmt.Errorf("tree entry %q repeats", e.Name)
		}
	}
	return TreeDescriptor{Kind: ObjectKindTree, Entries: sorted}, nil
}

// CommitDescriptor is the serialized form of one snapshot in a layer
// history: a tree plus zero or more parent commits.
type CommitDescriptor struct {
	Kind      string    `json:"kind" yaml:"kind"`
	Tree      string    `json:"tree" yaml:"tree"`
	Parents   []string  `json:"parents,omitempty" yaml:"parents,omitempty"`
	Message   string    `json:"message" yaml:"message"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Author    string    `json:"author,omitempty" yaml:"author,omitempty"`
	_         struct{}
}

// Validate a commit descriptor read back from storage
func (c CommitDescriptor) Validate() error {
	if c.Kind != ObjectKindCommit {
		return fmt.Errorf("object is not a commit (kind %q)", c.Kind)
	}
	if c.Tree == "" {
		return fmt.Errorf("commit has no tree")
	}
	return nil
}
