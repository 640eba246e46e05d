package model

import (
	"fmt"
	"time"
)

// TransactionStatus tracks the commit state machine.
type TransactionStatus string

const (
	// TxPrepared means the journal entry is durable but no ref has moved yet
	TxPrepared TransactionStatus = "prepared"

	// TxCommitting means ref swaps are underway
	TxCommitting TransactionStatus = "committing"

	// TxCommitted means every ref swap succeeded
	TxCommitted TransactionStatus = "committed"

	// TxAborted means the transaction was unwound (or found unwindable
	// during recovery) and must be restaged
	TxAborted TransactionStatus = "aborted"
)

// RefUpdate is one planned compare-and-swap within a transaction.
// An empty Expected means the ref was absent when the plan was captured.
type RefUpdate struct {
	Ref       string `json:"ref" yaml:"ref"`
	Expected  string `json:"expected,omitempty" yaml:"expected,omitempty"`
	New       string `json:"new" yaml:"new"`
	Completed bool   `json:"completed" yaml:"completed"`
	_         struct{}
}

// TransactionRecord is the durable intent log entry for one commit: the
// full plan of ref moves, written before any ref is touched and kept until
// the transaction reaches a terminal state.
type TransactionRecord struct {
	ID        string            `json:"id" yaml:"id"`
	Status    TransactionStatus `json:"status" yaml:"status"`
	Updates   []RefUpdate       `json:"updates" yaml:"updates"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	_         struct{}
}

// Validate a transaction record
func (t TransactionRecord) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("transaction record has no id")
	}
	switch t.Status {
	case TxPrepared, TxCommitting, TxCommitted, TxAborted:
	default:
		return fmt.Errorf("transaction %s has unknown status %q", t.ID, t.Status)
	}
	if len(t.Updates) == 0 {
		return fmt.Errorf("transaction %s plans no ref updates", t.ID)
	}
	seen := make(map[string]bool, len(t.Updates))
	for _, u := range t.Updates {
		if u.Ref == "" {
			return fmt.Errorf("transaction %s has an update with no ref", t.ID)
		}
		if u.New == "" {
			return fmt.Errorf("transaction %s plans no candidate for ref %s", t.ID, u.Ref)
		}
		if seen[u.Ref] {
			return fmt.Errorf("transaction %s updates ref %s twice", t.ID, u.Ref)
		}
		seen[u.Ref] = true
	}
	return nil
}
