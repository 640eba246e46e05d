// Package core implements the engine on top of the object store and the
// workspace: layer merging, the staging index, the journaled commit
// transaction with crash recovery, drift validation and materialization.
package core

import (
	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/storage"
	"github.com/strataconf/strata/pkg/workspace"
)

// Stores bundles the backends an engine operation needs: the
// content-addressed object store, a plain K/V view on the same backing for
// the transaction journal, and the local workspace.
type Stores struct {
	objects   *objects.Store
	journal   storage.Store
	workspace *workspace.Workspace
	l         *zap.Logger
}

// StoresOption alters engine wiring
type StoresOption func(*Stores)

// Logger sets the engine logger
func Logger(logger *zap.Logger) StoresOption {
	return func(s *Stores) {
		if logger != nil {
			s.l = logger
		}
	}
}

// NewStores wires the engine backends together
func NewStores(obj *objects.Store, journal storage.Store, ws *workspace.Workspace, opts ...StoresOption) *Stores {
	s := &Stores{
		objects:   obj,
		journal:   journal,
		workspace: ws,
		l:         zap.NewNop(),
	}
	for _, apply := range opts {
		apply(s)
	}
	return s
}

// Objects yields the content-addressed store
func (s *Stores) Objects() *objects.Store {
	return s.objects
}

// Journal yields the K/V store holding transaction records
func (s *Stores) Journal() storage.Store {
	return s.journal
}

// Workspace yields the local workspace
func (s *Stores) Workspace() *workspace.Workspace {
	return s.workspace
}
