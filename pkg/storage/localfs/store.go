// Package localfs implements the storage contract over a local
// file system, via afero.
//
// Writes are atomic: overwrites land in a staging area first and are
// Rename()d into place, exclusive creates rely on O_EXCL. Both are the
// primitives the ref compare-and-swap is assembled from.
package localfs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/strataconf/strata/pkg/storage"
	"github.com/strataconf/strata/pkg/storage/status"
)

// staging area key prefix and helper functions
const nestedPutStageName = ".put-stage"

// New creates a local file system backed store rooted at dir (or the
// default object root when dir is empty)
func New(fs afero.Fs) (storage.Store, error) {
	if fs == nil {
		fs = afero.NewBasePathFs(afero.NewOsFs(), filepath.Join(".strata", "store"))
	}
	// the staging area exists within the afero.Fs itself
	if err := fs.MkdirAll(nestedPutStageName, 0700); err != nil {
		return nil, fmt.Errorf("ensuring put staging directory %q: %v", nestedPutStageName, err)
	}
	return &localFS{fs: fs}, nil
}

type localFS struct {
	fs afero.Fs
}

func maybeInvalidKey(key string) error {
	const pathSepString = string(os.PathSeparator)
	pathComponents := strings.Split(strings.TrimLeft(key, pathSepString), pathSepString)
	if len(pathComponents) == 0 || pathComponents[0] == "" {
		return status.ErrInvalidResource.WrapMessage("empty key")
	}
	if pathComponents[0] == nestedPutStageName {
		return status.ErrInvalidResource.WrapMessage(
			"key %q conflicts with put staging area name %q", key, nestedPutStageName)
	}
	for _, component := range pathComponents {
		if component == ".." {
			return status.ErrInvalidResource.WrapMessage("key %q escapes the store root", key)
		}
	}
	return nil
}

func (l *localFS) Has(ctx context.Context, key string) (bool, error) {
	if err := maybeInvalidKey(key); err != nil {
		return false, err
	}
	fi, err := l.fs.Stat(key)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return !fi.IsDir(), nil
}

func (l *localFS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	has, err := l.Has(ctx, key)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, status.ErrNotExists.WrapMessage("key %q", key)
	}
	return l.fs.Open(key)
}

func (l *localFS) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if dir := filepath.Dir(key); dir != "" {
		if err := l.fs.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("ensuring directories for %q: %v", key, err)
		}
	}

	if exclusive {
		// O_EXCL creation is atomic on the target itself
		target, err := l.fs.OpenFile(key, os.O_CREATE|os.O_WRONLY|os.O_EXCL|os.O_SYNC, 0600)
		if err != nil {
			if os.IsExist(err) {
				return status.ErrExists.WrapMessage("key %q", key)
			}
			return fmt.Errorf("create record for %q: %v", key, err)
		}
		if _, err = storage.PipeIO(target, source); err != nil {
			_ = target.Close()
			return fmt.Errorf("write record for %q: %v", key, err)
		}
		return target.Close()
	}

	// overwrite path: stage first, then rename into place
	stageKey := filepath.Join(nestedPutStageName, strings.ReplaceAll(key, string(os.PathSeparator), "_"))
	target, err := l.fs.OpenFile(stageKey, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_SYNC, 0600)
	if err != nil {
		return fmt.Errorf("create staged record for %q: %v", key, err)
	}
	if _, err = storage.PipeIO(target, source); err != nil {
		_ = target.Close()
		return fmt.Errorf("write staged record for %q: %v", key, err)
	}
	if err = target.Close(); err != nil {
		return err
	}
	return l.fs.Rename(stageKey, key)
}

func (l *localFS) Delete(ctx context.Context, key string) error {
	if err := maybeInvalidKey(key); err != nil {
		return err
	}
	if err := l.fs.Remove(key); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %q: %v", key, err)
	}
	return nil
}

func (l *localFS) Keys(ctx context.Context) ([]string, error) {
	return l.KeysPrefix(ctx, "")
}

func (l *localFS) KeysPrefix(ctx context.Context, prefix string) ([]string, error) {
	const root = "."
	var res []string
	err := afero.Walk(l.fs, root, func(pth string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if pth == root {
			return nil
		}
		if info.IsDir() {
			if pth == nestedPutStageName {
				return filepath.SkipDir
			}
			return nil
		}
		key := filepath.ToSlash(pth)
		if prefix == "" || strings.HasPrefix(key, prefix) {
			res = append(res, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *localFS) Clear(ctx context.Context) error {
	return l.fs.RemoveAll("/")
}

func (l *localFS) String() string {
	const localfs = "localfs"
	switch fs := l.fs.(type) {
	case *afero.BasePathFs:
		pp, err := fs.RealPath("")
		if err != nil {
			return localfs
		}
		return localfs + "@" + pp
	default:
		return localfs
	}
}
