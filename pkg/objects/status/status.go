// Package status exports errors produced by the objects package.
package status

import "github.com/strataconf/strata/pkg/errors"

var (
	// ErrNotFound indicates the requested object or ref does not exist
	ErrNotFound = errors.New("not found")

	// ErrRefConflict indicates a compare-and-swap lost a race: the ref no
	// longer holds the expected value. Retryable after re-resolving.
	ErrRefConflict = errors.New("ref conflict")

	// ErrRefLocked indicates another writer currently holds the ref lock.
	// Retryable after a short wait.
	ErrRefLocked = errors.New("ref locked by another writer")

	// ErrCorrupted indicates an object or ref whose stored form does not
	// parse back
	ErrCorrupted = errors.New("corrupted object")

	// ErrInvalidKey indicates a malformed content key
	ErrInvalidKey = errors.New("invalid object key")
)
