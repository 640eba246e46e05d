package core

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
)

// RecoveryOutcome reports what recovery did with one journaled
// transaction.
type RecoveryOutcome struct {
	TransactionID string
	Status        model.TransactionStatus
	Detail        string
}

// Recover replays every live journal entry left behind by a crashed or
// raced commit, driving each to a terminal state.
//
// Replay is idempotent per ref: a ref already pointing at the planned
// candidate is marked complete without moving, a ref still at its expected
// prior is rolled forward, and a ref pointing anywhere else means an
// unrelated writer won the race, so the transaction is unwound and
// aborted. An unwind that itself fails leaves the record journaled and
// reports it as still committing.
func Recover(ctx context.Context, stores *Stores) ([]RecoveryOutcome, error) {
	keys, err := stores.Journal().KeysPrefix(ctx, model.GetJournalPathPrefix())
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	var outcomes []RecoveryOutcome
	for _, key := range keys {
		if model.IsJournalArchivePath(key) {
			continue
		}
		record, err := loadTransaction(ctx, stores, key)
		if err != nil {
			return outcomes, err
		}
		outcome, err := recoverOne(ctx, stores, &record)
		if err != nil {
			return outcomes, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func recoverOne(ctx context.Context, stores *Stores, record *model.TransactionRecord) (RecoveryOutcome, error) {
	logger := stores.l.With(zap.String("transaction", record.ID))

	switch record.Status {
	case model.TxCommitted:
		// crashed between commit and archival
		if err := archiveTransaction(ctx, stores, *record); err != nil {
			return RecoveryOutcome{}, err
		}
		logger.Info("recovered transaction was already committed")
		return RecoveryOutcome{
			TransactionID: record.ID,
			Status:        model.TxCommitted,
			Detail:        "already committed, archived",
		}, nil

	case model.TxAborted:
		if err := archiveTransaction(ctx, stores, *record); err != nil {
			return RecoveryOutcome{}, err
		}
		return RecoveryOutcome{
			TransactionID: record.ID,
			Status:        model.TxAborted,
			Detail:        "already aborted, archived",
		}, nil
	}

	if record.Status == model.TxPrepared {
		record.Status = model.TxCommitting
		if err := saveTransaction(ctx, stores, *record); err != nil {
			return RecoveryOutcome{}, err
		}
	}

	for i := range record.Updates {
		u := &record.Updates[i]
		if u.Completed {
			// already applied before the crash; a later external move
			// of this ref is not this transaction's business
			continue
		}
		candidate, err := objects.KeyFromString(u.New)
		if err != nil {
			return RecoveryOutcome{}, err
		}
		current, found, err := stores.Objects().ResolveRef(ctx, u.Ref)
		if err != nil {
			return RecoveryOutcome{}, err
		}
		if found && current == candidate {
			// the swap landed but the completion mark did not
			u.Completed = true
			if err := saveTransaction(ctx, stores, *record); err != nil {
				return RecoveryOutcome{}, err
			}
			continue
		}

		atPrior := (!found && u.Expected == "") ||
			(found && u.Expected != "" && current.String() == u.Expected)
		if !atPrior {
			// an unrelated writer moved the ref: conflict on recovery
			logger.Warn("recovered transaction lost its ref",
				zap.String("ref", u.Ref))
			return abortOnRecovery(ctx, stores, record, logger)
		}

		var expected *objects.Key
		if u.Expected != "" {
			exp, err := objects.KeyFromString(u.Expected)
			if err != nil {
				return RecoveryOutcome{}, err
			}
			expected = &exp
		}
		if err := stores.Objects().CompareAndSwapRef(ctx, u.Ref, expected, candidate); err != nil {
			logger.Warn("roll-forward lost a ref race",
				zap.String("ref", u.Ref), zap.Error(err))
			return abortOnRecovery(ctx, stores, record, logger)
		}
		u.Completed = true
		if err := saveTransaction(ctx, stores, *record); err != nil {
			return RecoveryOutcome{}, err
		}
	}

	record.Status = model.TxCommitted
	if err := saveTransaction(ctx, stores, *record); err != nil {
		return RecoveryOutcome{}, err
	}
	if err := pruneStagingForRecord(ctx, stores, record); err != nil {
		return RecoveryOutcome{}, err
	}
	if err := archiveTransaction(ctx, stores, *record); err != nil {
		return RecoveryOutcome{}, err
	}
	logger.Info("transaction rolled forward")
	return RecoveryOutcome{
		TransactionID: record.ID,
		Status:        model.TxCommitted,
		Detail:        "rolled forward",
	}, nil
}

func abortOnRecovery(ctx context.Context, stores *Stores, record *model.TransactionRecord, logger *zap.Logger) (RecoveryOutcome, error) {
	if err := unwindCompleted(ctx, stores, record); err != nil {
		_ = saveTransaction(ctx, stores, *record)
		logger.Error("unwind failed, transaction left partially applied", zap.Error(err))
		return RecoveryOutcome{
			TransactionID: record.ID,
			Status:        model.TxCommitting,
			Detail:        "conflict on recovery, unwind failed: " + err.Error(),
		}, nil
	}
	record.Status = model.TxAborted
	if err := saveTransaction(ctx, stores, *record); err != nil {
		return RecoveryOutcome{}, err
	}
	if err := archiveTransaction(ctx, stores, *record); err != nil {
		return RecoveryOutcome{}, err
	}
	logger.Warn("transaction aborted on recovery")
	return RecoveryOutcome{
		TransactionID: record.ID,
		Status:        model.TxAborted,
		Detail:        "conflict on recovery, unwound",
	}, nil
}

// pruneStagingForRecord drops local staged entries the recovered
// transaction actually published: an entry goes only when the recovered
// snapshot of its destination layer holds its exact content key at its
// path. Anything staged after the crash differs in path or content and
// stays staged; so do removals, which cannot be told apart from ones
// staged later and recommit as a no-op anyway.
func pruneStagingForRecord(ctx context.Context, stores *Stores, record *model.TransactionRecord) error {
	if stores.Workspace() == nil {
		return nil
	}
	idx, err := LoadStagingIndex(stores.Workspace())
	if err != nil {
		return err
	}
	if idx.Len() == 0 {
		return nil
	}

	// ref -> path -> published blob key
	published := make(map[string]map[string]string, len(record.Updates))
	for _, u := range record.Updates {
		commitKey, err := objects.KeyFromString(u.New)
		if err != nil {
			return err
		}
		commit, err := stores.Objects().ReadCommit(ctx, commitKey)
		if err != nil {
			return err
		}
		tree, err := objects.KeyFromString(commit.Tree)
		if err != nil {
			return err
		}
		files, err := stores.Objects().ReadTree(ctx, tree)
		if err != nil {
			return err
		}
		byPath := make(map[string]string, len(files))
		for _, f := range files {
			byPath[f.Path] = f.Key.String()
		}
		published[u.Ref] = byPath
	}

	pruned := false
	for _, e := range idx.Entries() {
		if e.Op == model.OpRemove {
			continue
		}
		refPath, err := model.GetRefPathToLayer(e.Layer)
		if err != nil {
			return err
		}
		byPath, touched := published[refPath]
		if !touched || byPath[e.Path] != e.ContentKey {
			continue
		}
		idx.Unstage(e.Path)
		pruned = true
	}
	if !pruned {
		return nil
	}
	return idx.Save(stores.Workspace())
}
