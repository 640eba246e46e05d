package core

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	"github.com/strataconf/strata/pkg/storage"
)

// LayerCommit reports one layer head moved by a commit.
type LayerCommit struct {
	Layer  model.Layer
	Ref    string
	Commit objects.Key
}

// CommitResult reports a committed transaction: the journal id, the new
// head of every touched layer, and the affected paths in lexicographic
// order.
type CommitResult struct {
	TransactionID string
	Layers        []LayerCommit
	Paths         []string
}

// CommitOption alters a commit
type CommitOption func(*commitSettings)

type commitSettings struct {
	message string
	author  string
}

// Message sets the commit message recorded on every snapshot
func Message(msg string) CommitOption {
	return func(s *commitSettings) {
		s.message = msg
	}
}

// Author sets the author recorded on every snapshot
func Author(author string) CommitOption {
	return func(s *commitSettings) {
		s.author = author
	}
}

// CommitStaged applies every staged entry atomically across its
// destination layers.
//
// The only atomic primitive the store offers is a single-ref
// compare-and-swap, so multi-layer atomicity is built from a durable
// intent journal plus idempotent replay: the full plan of ref moves is
// journaled before any ref is touched, refs are then swapped in
// lexicographic ref order with a durable completion mark after each, and
// a crash at any point leaves enough state for Recover to finish or
// unwind the transaction.
//
// A lost ref race unwinds the refs already moved, best effort. When the
// unwind itself fails the journal entry is retained and
// ErrPartiallyApplied surfaces with the transaction id.
func CommitStaged(ctx context.Context, stores *Stores, idx *StagingIndex, opts ...CommitOption) (*CommitResult, error) {
	settings := &commitSettings{}
	for _, apply := range opts {
		apply(settings)
	}

	entries := idx.Entries()
	if len(entries) == 0 {
		return nil, status.ErrNothingToCommit
	}
	if err := verifyStagedContent(ctx, stores.Objects(), entries); err != nil {
		return nil, err
	}
	if settings.message == "" {
		settings.message = fmt.Sprintf("commit %d staged change(s)", len(entries))
	}

	plan, err := planCommit(ctx, stores, entries, settings)
	if err != nil {
		return nil, err
	}

	txNumber := ksuid.New().String()
	record := model.TransactionRecord{
		ID:        txNumber,
		Status:    model.TxPrepared,
		Updates:   plan.updates,
		Timestamp: time.Now().UTC(),
	}
	if err := record.Validate(); err != nil {
		return nil, err
	}
	// durable intent before any ref moves
	if err := saveTransaction(ctx, stores, record); err != nil {
		return nil, err
	}

	record.Status = model.TxCommitting
	if err := saveTransaction(ctx, stores, record); err != nil {
		return nil, err
	}

	if err := applyUpdates(ctx, stores, &record); err != nil {
		return nil, finishFailedCommit(ctx, stores, &record, err)
	}

	record.Status = model.TxCommitted
	if err := saveTransaction(ctx, stores, record); err != nil {
		return nil, err
	}

	idx.clear()
	if err := idx.Save(stores.Workspace()); err != nil {
		return nil, err
	}
	if err := archiveTransaction(ctx, stores, record); err != nil {
		return nil, err
	}

	stores.l.Info("transaction committed",
		zap.String("transaction", txNumber),
		zap.Int("layers", len(plan.commits)),
		zap.Int("paths", len(plan.paths)))
	return &CommitResult{
		TransactionID: txNumber,
		Layers:        plan.commits,
		Paths:         plan.paths,
	}, nil
}

type commitPlan struct {
	updates []model.RefUpdate
	commits []LayerCommit
	paths   []string
}

// planCommit builds one candidate snapshot per destination layer and the
// ordered ref update plan. Snapshots are written to the object store up
// front: they stay unreachable until a ref swap publishes them.
func planCommit(ctx context.Context, stores *Stores, entries []model.StagingEntry, settings *commitSettings) (*commitPlan, error) {
	byRef := make(map[string][]model.StagingEntry)
	layerByRef := make(map[string]model.Layer)
	var refs []string
	for _, e := range entries {
		refPath, err := model.GetRefPathToLayer(e.Layer)
		if err != nil {
			return nil, status.ErrInvalidLayer.Wrap(err)
		}
		if _, seen := byRef[refPath]; !seen {
			refs = append(refs, refPath)
			layerByRef[refPath] = e.Layer
		}
		byRef[refPath] = append(byRef[refPath], e)
	}
	// fixed lexicographic ref order, so concurrent committers touching
	// overlapping layers cannot deadlock against each other
	sort.Strings(refs)

	plan := &commitPlan{}
	seenPath := make(map[string]bool)
	for _, refPath := range refs {
		layer := layerByRef[refPath]
		files, head, err := layerFiles(ctx, stores.Objects(), layer)
		if err != nil {
			return nil, err
		}

		next := make(map[string]objects.Key, len(files))
		for _, f := range files {
			next[f.Path] = f.Key
		}
		for _, e := range byRef[refPath] {
			if !seenPath[e.Path] {
				seenPath[e.Path] = true
				plan.paths = append(plan.paths, e.Path)
			}
			if e.Op == model.OpRemove {
				delete(next, e.Path)
				continue
			}
			key, err := objects.KeyFromString(e.ContentKey)
			if err != nil {
				return nil, err
			}
			next[e.Path] = key
		}
		nextFiles := make([]objects.PathEntry, 0, len(next))
		for pth, key := range next {
			nextFiles = append(nextFiles, objects.PathEntry{Path: pth, Key: key})
		}

		tree, err := stores.Objects().BuildNestedTree(ctx, nextFiles)
		if err != nil {
			return nil, err
		}
		var parents []objects.Key
		expected := ""
		if !head.IsZero() {
			parents = []objects.Key{head}
			expected = head.String()
		}
		candidate, err := stores.Objects().Commit(ctx, tree, settings.message, parents, settings.author)
		if err != nil {
			return nil, err
		}

		plan.updates = append(plan.updates, model.RefUpdate{
			Ref:      refPath,
			Expected: expected,
			New:      candidate.String(),
		})
		plan.commits = append(plan.commits, LayerCommit{
			Layer:  layer,
			Ref:    refPath,
			Commit: candidate,
		})
	}
	sort.Strings(plan.paths)
	return plan, nil
}

// applyUpdates swaps each planned ref in order, flushing the completion
// mark after every swap so replay never repeats a move
func applyUpdates(ctx context.Context, stores *Stores, record *model.TransactionRecord) error {
	for i := range record.Updates {
		u := &record.Updates[i]
		if u.Completed {
			continue
		}
		candidate, err := objects.KeyFromString(u.New)
		if err != nil {
			return err
		}
		var expected *objects.Key
		if u.Expected != "" {
			exp, err := objects.KeyFromString(u.Expected)
			if err != nil {
				return err
			}
			expected = &exp
		}
		if err := stores.Objects().CompareAndSwapRef(ctx, u.Ref, expected, candidate); err != nil {
			return err
		}
		u.Completed = true
		if err := saveTransaction(ctx, stores, *record); err != nil {
			return err
		}
	}
	return nil
}

// finishFailedCommit unwinds the refs a failed transaction already moved.
// A clean unwind marks the record aborted and archives it; a failed unwind
// retains the record and reports partial application.
func finishFailedCommit(ctx context.Context, stores *Stores, record *model.TransactionRecord, cause error) error {
	if unwindErr := unwindCompleted(ctx, stores, record); unwindErr != nil {
		_ = saveTransaction(ctx, stores, *record)
		var moved []string
		for _, u := range record.Updates {
			if u.Completed {
				moved = append(moved, u.Ref)
			}
		}
		stores.l.Error("transaction partially applied",
			zap.String("transaction", record.ID),
			zap.Strings("refs_still_moved", moved),
			zap.Error(unwindErr))
		return status.ErrPartiallyApplied.WrapMessage(
			"transaction %s: %v (unwind stopped on: %v; refs still moved: %s)",
			record.ID, cause, unwindErr, strings.Join(moved, ", "))
	}
	record.Status = model.TxAborted
	if err := saveTransaction(ctx, stores, *record); err != nil {
		return err
	}
	if err := archiveTransaction(ctx, stores, *record); err != nil {
		return err
	}
	stores.l.Warn("transaction aborted",
		zap.String("transaction", record.ID),
		zap.Error(cause))
	return cause
}

// unwindCompleted reverses completed ref moves in reverse plan order,
// flushing the record after each reversal
func unwindCompleted(ctx context.Context, stores *Stores, record *model.TransactionRecord) error {
	for i := len(record.Updates) - 1; i >= 0; i-- {
		u := &record.Updates[i]
		if !u.Completed {
			continue
		}
		candidate, err := objects.KeyFromString(u.New)
		if err != nil {
			return err
		}
		if u.Expected == "" {
			err = stores.Objects().CompareAndDeleteRef(ctx, u.Ref, candidate)
		} else {
			var prior objects.Key
			prior, err = objects.KeyFromString(u.Expected)
			if err == nil {
				err = stores.Objects().CompareAndSwapRef(ctx, u.Ref, &candidate, prior)
			}
		}
		if err != nil {
			return err
		}
		u.Completed = false
		if err := saveTransaction(ctx, stores, *record); err != nil {
			return err
		}
	}
	return nil
}

func saveTransaction(ctx context.Context, stores *Stores, record model.TransactionRecord) error {
	data, err := yaml.Marshal(record)
	if err != nil {
		return err
	}
	return stores.Journal().Put(ctx,
		model.GetJournalPathToTransaction(record.ID),
		bytes.NewReader(data), storage.OverWrite)
}

func loadTransaction(ctx context.Context, stores *Stores, key string) (model.TransactionRecord, error) {
	data, err := storage.ReadAll(ctx, stores.Journal(), key)
	if err != nil {
		return model.TransactionRecord{}, err
	}
	var record model.TransactionRecord
	if err := yaml.Unmarshal(data, &record); err != nil {
		return model.TransactionRecord{}, fmt.Errorf("corrupt transaction record %s: %v", key, err)
	}
	if err := record.Validate(); err != nil {
		return model.TransactionRecord{}, err
	}
	return record, nil
}

// archiveTransaction moves a terminal record out of the live journal.
// The record was flushed with its terminal status just before, so the
// live entry is copied over as is.
func archiveTransaction(ctx context.Context, stores *Stores, record model.TransactionRecord) error {
	liveKey := model.GetJournalPathToTransaction(record.ID)
	_, err := storage.ReadTee(ctx,
		stores.Journal(), liveKey,
		stores.Journal(), model.GetJournalArchivePathToTransaction(record.ID))
	if err != nil {
		return err
	}
	return stores.Journal().Delete(ctx, liveKey)
}
