// Package workspace handles I/O against the materialized configuration
// tree: reading current file content and hashes, atomic writes, and the
// workspace-local persisted state (staging index, materialization
// metadata).
//
// Workspace state is local to one machine and never shared across
// processes, so plain atomic file replacement is all the coordination it
// needs.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
)

const (
	// stateDir holds workspace-local records, beneath the workspace root
	stateDir = ".strata"

	// localOverlayDir holds the machine-only overlay files
	localOverlayDir = ".strata/local"
)

// Workspace is rooted at the directory holding materialized files.
type Workspace struct {
	fs afero.Fs
}

// New builds a workspace over the given filesystem root (os filesystem at
// dir when fs is nil)
func New(fs afero.Fs, dir string) *Workspace {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), dir)
	}
	return &Workspace{fs: fs}
}

// ReadFile returns the current content of a materialized file
func (w *Workspace) ReadFile(pth string) ([]byte, error) {
	return afero.ReadFile(w.fs, pth)
}

// HashFile returns the content hash of a materialized file and whether the
// file exists at all
func (w *Workspace) HashFile(pth string) (string, bool, error) {
	data, err := afero.ReadFile(w.fs, pth)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return objects.HashOf(data).String(), true, nil
}

// WriteFileAtomic writes a materialized file via temp-write-then-rename,
// so readers never observe partial content
func (w *Workspace) WriteFileAtomic(pth string, data []byte) error {
	dir := filepath.Dir(pth)
	if dir != "" && dir != "." {
		if err := w.fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("ensuring directories for %q: %v", pth, err)
		}
	}
	tmp := pth + ".tmp"
	if err := afero.WriteFile(w.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write staged file for %q: %v", pth, err)
	}
	return w.fs.Rename(tmp, pth)
}

// RemoveFile deletes a materialized file; absent files are a no-op
func (w *Workspace) RemoveFile(pth string) error {
	if err := w.fs.Remove(pth); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// OverlayFile is one file of the machine-only overlay layer.
type OverlayFile struct {
	Path    string
	Content []byte
}

// LocalOverlayFiles enumerates the machine-only overlay, paths relative to
// the overlay root in lexicographic order. The overlay is sourced straight
// from the filesystem and never merged from storage.
func (w *Workspace) LocalOverlayFiles() ([]OverlayFile, error) {
	exists, err := afero.DirExists(w.fs, localOverlayDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	var files []OverlayFile
	err = afero.Walk(w.fs, localOverlayDir, func(pth string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		data, err := afero.ReadFile(w.fs, pth)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(localOverlayDir, pth)
		if err != nil {
			return err
		}
		files = append(files, OverlayFile{Path: filepath.ToSlash(rel), Content: data})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Workspace) saveRecord(pth string, record interface{}) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return err
	}
	if err := w.fs.MkdirAll(stateDir, 0755); err != nil {
		return err
	}
	return w.WriteFileAtomic(filepath.Join(stateDir, pth), data)
}

func (w *Workspace) loadRecord(pth string, record interface{}) (bool, error) {
	data, err := afero.ReadFile(w.fs, filepath.Join(stateDir, pth))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := yaml.Unmarshal(data, record); err != nil {
		return false, fmt.Errorf("corrupt workspace record %q: %v", pth, err)
	}
	return true, nil
}

// SaveMetadata persists the materialization metadata record
func (w *Workspace) SaveMetadata(meta model.WorkspaceMetadata) error {
	return w.saveRecord(model.GetWorkspacePathToMetadata(), meta)
}

// LoadMetadata reads the materialization metadata; found is false for a
// fresh workspace where nothing was materialized yet
func (w *Workspace) LoadMetadata() (meta model.WorkspaceMetadata, found bool, err error) {
	found, err = w.loadRecord(model.GetWorkspacePathToMetadata(), &meta)
	return meta, found, err
}

// SaveStagingIndex persists the staged entries record
func (w *Workspace) SaveStagingIndex(desc model.StagingIndexDescriptor) error {
	return w.saveRecord(model.GetWorkspacePathToStagingIndex(), desc)
}

// LoadStagingIndex reads the staged entries record; an absent record is an
// empty index
func (w *Workspace) LoadStagingIndex() (model.StagingIndexDescriptor, error) {
	var desc model.StagingIndexDescriptor
	_, err := w.loadRecord(model.GetWorkspacePathToStagingIndex(), &desc)
	return desc, err
}
