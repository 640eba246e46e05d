package core

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/value"
	"github.com/strataconf/strata/pkg/value/codec"
)

// MaterializeResult reports what a materialization wrote.
type MaterializeResult struct {
	Paths   []string
	Sources []model.LayerSource
}

// Materialize merges every active layer for a (project, mode, scope)
// context, folds the machine-local overlay on top, writes the result into
// the workspace and records the metadata the validator checks against.
//
// Materializing overwrites workspace files, so it is gated on attachment
// unless force is set. Files written by an earlier materialization but no
// longer produced are removed.
func Materialize(ctx context.Context, stores *Stores, project, mode, scope string, force bool) (*MaterializeResult, error) {
	if err := GateDestructive(ctx, stores, project, mode, scope, force); err != nil {
		return nil, err
	}

	merged, err := MergeAll(ctx, stores, project, mode, scope)
	if err != nil {
		return nil, err
	}
	if err := overlayLocal(stores, merged); err != nil {
		return nil, err
	}

	meta := model.WorkspaceMetadata{
		Timestamp: time.Now().UTC(),
		Sources:   merged.Sources,
	}
	for _, pth := range merged.Paths() {
		doc, _ := merged.Get(pth)
		data, err := codec.ForPath(pth).Encode(doc.Value)
		if err != nil {
			return nil, err
		}
		if err := stores.Workspace().WriteFileAtomic(pth, data); err != nil {
			return nil, err
		}
		meta.Files = append(meta.Files, model.FileRecord{
			Path: pth,
			Hash: objects.HashOf(data).String(),
		})
	}

	if err := removeStaleFiles(stores, merged); err != nil {
		return nil, err
	}
	if err := stores.Workspace().SaveMetadata(meta); err != nil {
		return nil, err
	}

	stores.l.Info("workspace materialized",
		zap.String("project", project),
		zap.String("mode", mode),
		zap.String("scope", scope),
		zap.Int("files", len(meta.Files)))
	return &MaterializeResult{
		Paths:   merged.Paths(),
		Sources: merged.Sources,
	}, nil
}

// overlayLocal folds the machine-local overlay files on top of the merged
// layers. The overlay is read straight from the filesystem; it has no
// history and no refs.
func overlayLocal(stores *Stores, merged *MergeResult) error {
	files, err := stores.Workspace().LocalOverlayFiles()
	if err != nil {
		return err
	}
	local := model.NewUserLocal()
	for _, f := range files {
		v, err := codec.ForPath(f.Path).Decode(f.Content)
		if err != nil {
			return codecError(err, local, f.Path)
		}
		existing, seen := merged.byPath[f.Path]
		if !seen {
			merged.order = append(merged.order, f.Path)
			merged.byPath[f.Path] = &MergedFile{
				Path:   f.Path,
				Value:  v,
				Layers: []model.Layer{local},
			}
			continue
		}
		existing.Value = value.Merge(existing.Value, v)
		existing.Layers = append(existing.Layers, local)
	}
	return nil
}

// removeStaleFiles drops files a previous materialization wrote that the
// current one no longer produces
func removeStaleFiles(stores *Stores, merged *MergeResult) error {
	previous, found, err := stores.Workspace().LoadMetadata()
	if err != nil || !found {
		return err
	}
	for _, f := range previous.Files {
		if _, still := merged.byPath[f.Path]; !still {
			if err := stores.Workspace().RemoveFile(f.Path); err != nil {
				return err
			}
		}
	}
	return nil
}
