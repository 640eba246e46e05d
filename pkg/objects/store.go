// Package objects implements the content-addressed object store and the
// named mutable pointers ("refs") above a plain K/V storage backend.
//
// Blobs, trees and commits are immutable and addressed by the blake2b hash
// of their serialized form: duplicate writes of identical content are
// idempotent no-ops, so objects need no cross-process coordination. Refs
// are the only mutable state; their single-ref compare-and-swap is the one
// atomic primitive the store provides, and everything transactional is
// built on top of it elsewhere.
package objects

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/dlogger"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects/status"
	"github.com/strataconf/strata/pkg/storage"
)

const defaultLockTTL = 5 * time.Minute

// Store exposes blob/tree/commit storage and ref operations over a backing
// K/V store.
type Store struct {
	backing storage.Store
	lockTTL time.Duration
	l       *zap.Logger
}

// Option alters store defaults
type Option func(*Store)

// Logger sets a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.l = logger
		}
	}
}

// LockTTL sets how old a ref lock must be before a writer may break it
func LockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// New builds an object store on a backing K/V store
func New(backing storage.Store, opts ...Option) *Store {
	s := &Store{
		backing: backing,
		lockTTL: defaultLockTTL,
		l:       dlogger.MustGetLogger(dlogger.LogLevelNone),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

func (s *Store) String() string {
	return fmt.Sprint("objects@", s.backing.String())
}

// objectKey shards object paths by the first byte of the hash
func objectKey(k Key) string {
	hexed := k.String()
	return fmt.Sprint("objects/", hexed[:2], "/", hexed[2:])
}

// putObject writes content-addressed bytes, tolerating concurrent
// identical writes
func (s *Store) putObject(ctx context.Context, data []byte) (Key, error) {
	key := HashOf(data)
	pth := objectKey(key)
	has, err := s.backing.Has(ctx, pth)
	if err != nil {
		return Key{}, err
	}
	if has {
		return key, nil
	}
	err = s.backing.Put(ctx, pth, bytes.NewReader(data), storage.IfNotPresent)
	if err != nil && !storage.IsExists(err) {
		return Key{}, err
	}
	return key, nil
}

func (s *Store) getObject(ctx context.Context, key Key) ([]byte, error) {
	data, err := storage.ReadAll(ctx, s.backing, objectKey(key))
	if err != nil {
		if storage.IsNotExists(err) {
			return nil, status.ErrNotFound.WrapMessage("object %s", key)
		}
		return nil, err
	}
	return data, nil
}

// PutBlob stores raw file content and returns its content key
func (s *Store) PutBlob(ctx context.Context, data []byte) (Key, error) {
	return s.putObject(ctx, data)
}

// ReadBlob fetches raw file content by key
func (s *Store) ReadBlob(ctx context.Context, key Key) ([]byte, error) {
	return s.getObject(ctx, key)
}

// HasObject probes for an object by key
func (s *Store) HasObject(ctx context.Context, key Key) (bool, error) {
	return s.backing.Has(ctx, objectKey(key))
}

// Commit stores a snapshot pointing at a tree, with the given parents
func (s *Store) Commit(ctx context.Context, tree Key, message string, parents []Key, author string) (Key, error) {
	if _, err := s.ReadTreeEntries(ctx, tree); err != nil {
		return Key{}, err
	}
	desc := model.CommitDescriptor{
		Kind:      model.ObjectKindCommit,
		Tree:      tree.String(),
		Message:   message,
		Timestamp: time.Now().UTC(),
		Author:    author,
	}
	for _, parent := range parents {
		desc.Parents = append(desc.Parents, parent.String())
	}
	data, err := yaml.Marshal(desc)
	if err != nil {
		return Key{}, err
	}
	key, err := s.putObject(ctx, data)
	if err != nil {
		return Key{}, err
	}
	s.l.Debug("stored commit", zap.Stringer("key", key), zap.Stringer("tree", tree))
	return key, nil
}

// ReadCommit fetches and validates a commit descriptor
func (s *Store) ReadCommit(ctx context.Context, key Key) (model.CommitDescriptor, error) {
	data, err := s.getObject(ctx, key)
	if err != nil {
		return model.CommitDescriptor{}, err
	}
	var desc model.CommitDescriptor
	if err := yaml.Unmarshal(data, &desc); err != nil {
		return model.CommitDescriptor{}, status.ErrCorrupted.WrapMessage("commit %s: %v", key, err)
	}
	if err := desc.Validate(); err != nil {
		return model.CommitDescriptor{}, status.ErrCorrupted.WrapMessage("commit %s: %v", key, err)
	}
	return desc, nil
}
