package objects

import (
	"context"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/objects/status"
	"github.com/strataconf/strata/pkg/storage"
)

const (
	refLockSuffix = ".lock"
	refPrefix     = "refs/"
)

// ResolveRef reads the commit key a ref points at. An absent ref is not an
// error: found reports presence.
func (s *Store) ResolveRef(ctx context.Context, refPath string) (key Key, found bool, err error) {
	data, err := storage.ReadAll(ctx, s.backing, refPath)
	if err != nil {
		if storage.IsNotExists(err) {
			return Key{}, false, nil
		}
		return Key{}, false, err
	}
	key, err = KeyFromString(strings.TrimSpace(string(data)))
	if err != nil {
		return Key{}, false, status.ErrCorrupted.WrapMessage("ref %s: %v", refPath, err)
	}
	return key, true, nil
}

// CompareAndSwapRef atomically points refPath at candidate, provided it
// still resolves to expected (nil meaning: the ref must be absent).
//
// This is the only atomic primitive the store offers, and it is atomic for
// a single ref only. The swap takes a short-lived lock key (broken when
// older than the lock TTL, so a crashed writer cannot wedge the ref), then
// verifies and atomically replaces the ref. Losing the verification
// surfaces ErrRefConflict with both values; losing the lock surfaces
// ErrRefLocked, which callers may simply retry.
func (s *Store) CompareAndSwapRef(ctx context.Context, refPath string, expected *Key, candidate Key) error {
	lockKey := refPath + refLockSuffix

	if err := s.acquireRefLock(ctx, lockKey); err != nil {
		return err
	}
	defer func() {
		_ = s.backing.Delete(ctx, lockKey)
	}()

	current, found, err := s.ResolveRef(ctx, refPath)
	if err != nil {
		return err
	}
	switch {
	case expected == nil && found:
		return status.ErrRefConflict.WrapMessage(
			"ref %s: expected absent, found %s", refPath, current)
	case expected != nil && !found:
		return status.ErrRefConflict.WrapMessage(
			"ref %s: expected %s, found absent", refPath, *expected)
	case expected != nil && current != *expected:
		return status.ErrRefConflict.WrapMessage(
			"ref %s: expected %s, found %s", refPath, *expected, current)
	}

	err = s.backing.Put(ctx, refPath, strings.NewReader(candidate.String()+"\n"), storage.OverWrite)
	if err != nil {
		return err
	}
	s.l.Debug("ref swapped",
		zap.String("ref", refPath),
		zap.Stringer("new", candidate),
		zap.Bool("was_present", found))
	return nil
}

func (s *Store) acquireRefLock(ctx context.Context, lockKey string) error {
	stamp := time.Now().UTC().Format(time.RFC3339Nano)
	err := s.backing.Put(ctx, lockKey, strings.NewReader(stamp), storage.IfNotPresent)
	if err == nil {
		return nil
	}
	if !storage.IsExists(err) {
		return err
	}

	// lock held: break it only when demonstrably stale
	if s.lockIsStale(ctx, lockKey) {
		s.l.Warn("breaking stale ref lock", zap.String("lock", lockKey))
		_ = s.backing.Delete(ctx, lockKey)
		err = s.backing.Put(ctx, lockKey, strings.NewReader(stamp), storage.IfNotPresent)
		if err == nil {
			return nil
		}
		if !storage.IsExists(err) {
			return err
		}
	}
	return status.ErrRefLocked.WrapMessage("lock %s", lockKey)
}

func (s *Store) lockIsStale(ctx context.Context, lockKey string) bool {
	data, err := storage.ReadAll(ctx, s.backing, lockKey)
	if err != nil {
		return false
	}
	stamp, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		// unreadable lock content counts as stale
		return true
	}
	return time.Since(stamp) > s.lockTTL
}

// CompareAndDeleteRef removes refPath, provided it still resolves to
// expected. Used to unwind a half-applied transaction whose ref was absent
// before the swap. Same locking discipline as CompareAndSwapRef.
func (s *Store) CompareAndDeleteRef(ctx context.Context, refPath string, expected Key) error {
	lockKey := refPath + refLockSuffix

	if err := s.acquireRefLock(ctx, lockKey); err != nil {
		return err
	}
	defer func() {
		_ = s.backing.Delete(ctx, lockKey)
	}()

	current, found, err := s.ResolveRef(ctx, refPath)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if current != expected {
		return status.ErrRefConflict.WrapMessage(
			"ref %s: expected %s, found %s", refPath, expected, current)
	}
	return s.backing.Delete(ctx, refPath)
}

// DeleteRef removes a ref; deleting an absent ref is a no-op
func (s *Store) DeleteRef(ctx context.Context, refPath string) error {
	return s.backing.Delete(ctx, refPath)
}

// ListRefs returns the ref paths matching a glob pattern (path.Match
// syntax, one pattern segment per path segment). An empty pattern lists
// every ref.
func (s *Store) ListRefs(ctx context.Context, pattern string) ([]string, error) {
	keys, err := s.backing.KeysPrefix(ctx, refPrefix)
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, key := range keys {
		if strings.HasSuffix(key, refLockSuffix) {
			continue
		}
		if pattern != "" {
			ok, err := path.Match(pattern, key)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		refs = append(refs, key)
	}
	return refs, nil
}
