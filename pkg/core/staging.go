package core

import (
	"context"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/workspace"
)

// StagingIndex accumulates pending changes between commits: an ordered map
// from path to staging entry, backed by a radix tree so enumeration is
// always in lexicographic path order. A path is staged against exactly one
// destination layer at a time: restaging a path replaces its entry.
//
// The index is an explicit value handed to operations, never process
// state. It clears only when a commit transaction reaches the committed
// state.
type StagingIndex struct {
	tree *iradix.Tree
}

// NewStagingIndex builds an empty index
func NewStagingIndex() *StagingIndex {
	return &StagingIndex{tree: iradix.New()}
}

// Stage records a pending change, replacing any previous entry for the
// same path
func (idx *StagingIndex) Stage(entry model.StagingEntry) error {
	if err := entry.Validate(); err != nil {
		return status.ErrInvalidLayer.Wrap(err)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	idx.tree, _, _ = idx.tree.Insert([]byte(entry.Path), entry)
	return nil
}

// Unstage drops the pending change for a path; unknown paths are a no-op
func (idx *StagingIndex) Unstage(pth string) {
	idx.tree, _, _ = idx.tree.Delete([]byte(pth))
}

// Get returns the pending entry for a path
func (idx *StagingIndex) Get(pth string) (model.StagingEntry, bool) {
	v, ok := idx.tree.Get([]byte(pth))
	if !ok {
		return model.StagingEntry{}, false
	}
	return v.(model.StagingEntry), true
}

// Len reports the number of staged paths
func (idx *StagingIndex) Len() int {
	return idx.tree.Len()
}

// Entries lists every staged entry in lexicographic path order
func (idx *StagingIndex) Entries() []model.StagingEntry {
	entries := make([]model.StagingEntry, 0, idx.tree.Len())
	it := idx.tree.Root().Iterator()
	for _, v, ok := it.Next(); ok; _, v, ok = it.Next() {
		entries = append(entries, v.(model.StagingEntry))
	}
	return entries
}

// EntriesForLayer lists the staged entries destined for one layer, in
// lexicographic path order
func (idx *StagingIndex) EntriesForLayer(l model.Layer) []model.StagingEntry {
	var entries []model.StagingEntry
	for _, e := range idx.Entries() {
		if e.Layer == l {
			entries = append(entries, e)
		}
	}
	return entries
}

// clear resets the index. Only the commit path calls this, after the
// transaction reaches its committed state.
func (idx *StagingIndex) clear() {
	idx.tree = iradix.New()
}

// Descriptor renders the index in its persisted form
func (idx *StagingIndex) Descriptor() model.StagingIndexDescriptor {
	return model.StagingIndexDescriptor{Entries: idx.Entries()}
}

// Save persists the index to the workspace
func (idx *StagingIndex) Save(ws *workspace.Workspace) error {
	return ws.SaveStagingIndex(idx.Descriptor())
}

// LoadStagingIndex reads the persisted index back from the workspace
func LoadStagingIndex(ws *workspace.Workspace) (*StagingIndex, error) {
	desc, err := ws.LoadStagingIndex()
	if err != nil {
		return nil, err
	}
	idx := NewStagingIndex()
	for _, e := range desc.Entries {
		if err := idx.Stage(e); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// StageContent uploads content to the object store and stages the path
// against a destination layer. The blob lands in storage immediately but
// stays inert until a commit makes it reachable from a layer head.
func StageContent(ctx context.Context, stores *Stores, idx *StagingIndex, pth string, layer model.Layer, content []byte) error {
	op := model.OpAdd
	present, err := layerHasPath(ctx, stores.Objects(), layer, pth)
	if err != nil {
		return err
	}
	if present {
		op = model.OpModify
	}
	key, err := stores.Objects().PutBlob(ctx, content)
	if err != nil {
		return err
	}
	return idx.Stage(model.StagingEntry{
		Path:       pth,
		Layer:      layer,
		ContentKey: key.String(),
		Op:         op,
		Timestamp:  time.Now().UTC(),
	})
}

// StageRemoval stages the deletion of a path from a destination layer
func StageRemoval(idx *StagingIndex, pth string, layer model.Layer) error {
	return idx.Stage(model.StagingEntry{
		Path:      pth,
		Layer:     layer,
		Op:        model.OpRemove,
		Timestamp: time.Now().UTC(),
	})
}

// layerHasPath reports whether the current head of a versioned layer
// holds the path
func layerHasPath(ctx context.Context, store *objects.Store, layer model.Layer, pth string) (bool, error) {
	files, _, err := layerFiles(ctx, store, layer)
	if err != nil {
		return false, err
	}
	for _, f := range files {
		if f.Path == pth {
			return true, nil
		}
	}
	return false, nil
}

// ensure content keys referenced by entries are still present
func verifyStagedContent(ctx context.Context, store *objects.Store, entries []model.StagingEntry) error {
	for _, e := range entries {
		if e.Op == model.OpRemove {
			continue
		}
		key, err := objects.KeyFromString(e.ContentKey)
		if err != nil {
			return status.ErrStagedContentMissing.WrapMessage("path %s: %v", e.Path, err)
		}
		has, err := store.HasObject(ctx, key)
		if err != nil {
			return err
		}
		if !has {
			return status.ErrStagedContentMissing.WrapMessage("path %s, key %s", e.Path, e.ContentKey)
		}
	}
	return nil
}
