// Package storage declares the minimal K/V contract the object store is
// built on.
//
// Typically this is something file system-like. Implementations of this
// interface are assumed to be fairly simple: the only write guarantees a
// backend must honor are exclusive creation (IfNotPresent) and atomic
// replacement of a single key. Everything stronger, including the ref
// compare-and-swap, is constructed above this interface.
package storage

import (
	"bytes"
	"context"
	"io"
	"io/ioutil"

	"github.com/strataconf/strata/pkg/errors"
	"github.com/strataconf/strata/pkg/storage/status"
)

const (
	// OverWrite replaces any existing content at the key
	OverWrite = false

	// IfNotPresent makes Put fail with ErrExists when the key exists
	IfNotPresent = true
)

// Store implementations know how to read and write entries of a K/V model.
type Store interface {
	String() string
	Has(context.Context, string) (bool, error)
	Get(context.Context, string) (io.ReadCloser, error)
	Put(ctx context.Context, key string, source io.Reader, exclusive bool) error
	Delete(context.Context, string) error
	Keys(context.Context) ([]string, error)
	KeysPrefix(ctx context.Context, prefix string) ([]string, error)
	Clear(context.Context) error
}

// ReadAll fetches a key and drains it into memory
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	reader, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return ioutil.ReadAll(reader)
}

// ReadTee fetches a key from one store and copies it to another
func ReadTee(ctx context.Context, sStore Store, source string, dStore Store, destination string) ([]byte, error) {
	object, err := ReadAll(ctx, sStore, source)
	if err != nil {
		return nil, err
	}
	err = dStore.Put(ctx, destination, bytes.NewReader(object), OverWrite)
	if err != nil {
		return nil, err
	}
	return object, nil
}

// PipeIO copies a reader to a writer with a fixed-size buffer
func PipeIO(writer io.Writer, reader io.Reader) (n int64, err error) {
	buf := make([]byte, 32*1024)
	return io.CopyBuffer(writer, reader, buf)
}

// IsNotExists tells whether an error means the key is absent
func IsNotExists(err error) bool {
	return errors.Is(err, status.ErrNotExists)
}

// IsExists tells whether an error means an exclusive Put lost to an
// existing key
func IsExists(err error) bool {
	return errors.Is(err, status.ErrExists)
}
