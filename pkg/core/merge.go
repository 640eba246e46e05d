package core

import (
	"context"

	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec"
)

// MergedFile is one merged document together with the layers that
// contributed to it, ascending precedence.
type MergedFile struct {
	Path   string
	Value  value.Value
	Layers []model.Layer
}

// MergeResult maps paths to merged documents, ordered by first appearance
// across the layer fold.
type MergeResult struct {
	order  []string
	byPath map[string]*MergedFile
	// Sources records the layer heads that fed the fold, ascending
	// precedence, absent layers excluded.
	Sources []model.LayerSource
}

// Paths lists merged paths in first-seen order
func (r *MergeResult) Paths() []string {
	return r.order
}

// Get returns the merged document for a path
func (r *MergeResult) Get(pth string) (MergedFile, bool) {
	f, ok := r.byPath[pth]
	if !ok {
		return MergedFile{}, false
	}
	return *f, true
}

// Len reports the number of merged paths
func (r *MergeResult) Len() int {
	return len(r.order)
}

// MergeOption alters a merge run
type MergeOption func(*mergeSettings)

type mergeSettings struct {
	merge value.MergeFunc
	l     *zap.Logger
}

// WithMergeFunc substitutes the pairwise merge applied to structured
// documents sharing a path. The default is the deep merge-patch fold.
func WithMergeFunc(fn value.MergeFunc) MergeOption {
	return func(s *mergeSettings) {
		if fn != nil {
			s.merge = fn
		}
	}
}

func defaultMergeSettings(stores *Stores) *mergeSettings {
	return &mergeSettings{merge: value.Merge, l: stores.l}
}

// MergeAll folds every layer active for a (project, mode, scope) context,
// ascending precedence. Layers whose ref is absent contribute nothing.
func MergeAll(ctx context.Context, stores *Stores, project, mode, scope string, opts ...MergeOption) (*MergeResult, error) {
	layers, err := model.ActiveLayers(project, mode, scope)
	if err != nil {
		return nil, status.ErrInvalidLayer.Wrap(err)
	}
	return mergeLayers(ctx, stores, layers, opts)
}

// MergeSubset folds an explicit ascending list of versioned layers.
// Non-versioned layers are rejected: the local overlay and the workspace
// itself never live in storage.
func MergeSubset(ctx context.Context, stores *Stores, layers []model.Layer, opts ...MergeOption) (*MergeResult, error) {
	for _, l := range layers {
		if err := l.Validate(); err != nil {
			return nil, status.ErrInvalidLayer.Wrap(err)
		}
		if !l.Versioned() {
			return nil, status.ErrInvalidLayer.WrapMessage("layer %s is not versioned", l)
		}
	}
	return mergeLayers(ctx, stores, layers, opts)
}

func mergeLayers(ctx context.Context, stores *Stores, layers []model.Layer, opts []MergeOption) (*MergeResult, error) {
	settings := defaultMergeSettings(stores)
	for _, apply := range opts {
		apply(settings)
	}

	result := &MergeResult{byPath: make(map[string]*MergedFile)}
	for _, layer := range layers {
		files, head, err := layerFiles(ctx, stores.Objects(), layer)
		if err != nil {
			return nil, err
		}
		if head.IsZero() {
			settings.l.Debug("layer absent, skipped", zap.Stringer("layer", layer))
			continue
		}
		result.Sources = append(result.Sources, model.LayerSource{
			Layer:    layer,
			CommitID: head.String(),
		})

		for _, f := range files {
			data, err := stores.Objects().ReadBlob(ctx, f.Key)
			if err != nil {
				return nil, err
			}
			v, err := codec.ForPath(f.Path).Decode(data)
			if err != nil {
				return nil, codecError(err, layer, f.Path)
			}

			existing, seen := result.byPath[f.Path]
			if !seen {
				result.order = append(result.order, f.Path)
				result.byPath[f.Path] = &MergedFile{
					Path:   f.Path,
					Value:  v,
					Layers: []model.Layer{layer},
				}
				continue
			}
			// text documents replace wholesale, which the merge
			// function already guarantees for non-object pairings
			existing.Value = settings.merge(existing.Value, v)
			existing.Layers = append(existing.Layers, layer)
		}
	}
	return result, nil
}

func codecError(err error, layer model.Layer, pth string) error {
	return &LayerFileError{Layer: layer, Path: pth, Err: err}
}

// LayerFileError decorates a codec failure with the layer and path that
// produced it.
type LayerFileError struct {
	Layer model.Layer
	Path  string
	Err   error
}

func (e *LayerFileError) Error() string {
	return "layer " + e.Layer.String() + ", path " + e.Path + ": " + e.Err.Error()
}

func (e *LayerFileError) Unwrap() error {
	return e.Err
}

// layerFiles reads the full file listing at the current head of a
// versioned layer. An absent ref yields a zero head and no files.
func layerFiles(ctx context.Context, store *objects.Store, layer model.Layer) ([]objects.PathEntry, objects.Key, error) {
	refPath, err := model.GetRefPathToLayer(layer)
	if err != nil {
		return nil, objects.Key{}, status.ErrInvalidLayer.Wrap(err)
	}
	head, found, err := store.ResolveRef(ctx, refPath)
	if err != nil || !found {
		return nil, objects.Key{}, err
	}
	commit, err := store.ReadCommit(ctx, head)
	if err != nil {
		return nil, objects.Key{}, err
	}
	tree, err := objects.KeyFromString(commit.Tree)
	if err != nil {
		return nil, objects.Key{}, err
	}
	files, err := store.ReadTree(ctx, tree)
	if err != nil {
		return nil, objects.Key{}, err
	}
	return files, head, nil
}
