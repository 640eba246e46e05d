package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	yaml "gopkg.in/yaml.v2"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/errors"
	"github.com/strataconf/strata/pkg/model"
	"github.com/strataconf/strata/pkg/objects"
	objstatus "github.com/strataconf/strata/pkg/objects/status"
	"github.com/strataconf/strata/pkg/storage"
	"github.com/strataconf/strata/pkg/storage/localfs"
	"github.com/strataconf/strata/pkg/workspace"
)

func liveJournalKeys(t *testing.T, stores *Stores) []string {
	t.Helper()
	keys, err := stores.Journal().KeysPrefix(context.Background(), model.GetJournalPathPrefix())
	require.NoError(t, err)
	var live []string
	for _, k := range keys {
		if !model.IsJournalArchivePath(k) {
			live = append(live, k)
		}
	}
	return live
}

func archivedRecord(t *testing.T, stores *Stores, txID string) model.TransactionRecord {
	t.Helper()
	data, err := storage.ReadAll(context.Background(), stores.Journal(),
		model.GetJournalArchivePathToTransaction(txID))
	require.NoError(t, err)
	var record model.TransactionRecord
	require.NoError(t, yaml.Unmarshal(data, &record))
	return record
}

func TestCommitNothingStaged(t *testing.T) {
	stores := testStores(t)
	_, err := CommitStaged(context.Background(), stores, NewStagingIndex())
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNothingToCommit))
}

func TestCommitPublishesSnapshot(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()
	layer := model.NewProjectBase("api")

	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", layer, []byte(`{"a":1}`)))
	require.NoError(t, StageContent(ctx, stores, idx, "conf/db.yaml", layer, []byte("host: db\n")))

	result, err := CommitStaged(ctx, stores, idx, Message("initial"), Author("dev@host"))
	require.NoError(t, err)
	require.NotEmpty(t, result.TransactionID)
	assert.Equal(t, []string{"app.json", "conf/db.yaml"}, result.Paths)
	require.Len(t, result.Layers, 1)
	assert.Equal(t, layer, result.Layers[0].Layer)

	// ref points at the new commit
	refPath, err := model.GetRefPathToLayer(layer)
	require.NoError(t, err)
	head, found, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, result.Layers[0].Commit, head)

	commit, err := stores.Objects().ReadCommit(ctx, head)
	require.NoError(t, err)
	assert.Equal(t, "initial", commit.Message)
	assert.Equal(t, "dev@host", commit.Author)
	assert.Empty(t, commit.Parents)

	files, _, err := layerFiles(ctx, stores.Objects(), layer)
	require.NoError(t, err)
	require.Len(t, files, 2)

	// staging cleared, in memory and persisted
	assert.Zero(t, idx.Len())
	reloaded, err := LoadStagingIndex(stores.Workspace())
	require.NoError(t, err)
	assert.Zero(t, reloaded.Len())

	// journal archived
	assert.Empty(t, liveJournalKeys(t, stores))
	record := archivedRecord(t, stores, result.TransactionID)
	assert.Equal(t, model.TxCommitted, record.Status)
}

func TestCommitChainsParents(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()
	layer := model.NewGlobalBase()

	seedLayer(t, stores, layer, map[string]string{"app.json": `{"a":1}`})
	refPath, _ := model.GetRefPathToLayer(layer)
	first, _, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)

	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", layer, []byte(`{"a":2}`)))
	entry, _ := idx.Get("app.json")
	assert.Equal(t, model.OpModify, entry.Op)

	_, err = CommitStaged(ctx, stores, idx)
	require.NoError(t, err)

	second, _, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)
	commit, err := stores.Objects().ReadCommit(ctx, second)
	require.NoError(t, err)
	require.Len(t, commit.Parents, 1)
	assert.Equal(t, first.String(), commit.Parents[0])
}

func TestCommitRemoval(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()
	layer := model.NewGlobalBase()

	seedLayer(t, stores, layer, map[string]string{
		"app.json": `{"a":1}`,
		"drop.txt": "bye\n",
	})

	idx := NewStagingIndex()
	require.NoError(t, StageRemoval(idx, "drop.txt", layer))
	_, err := CommitStaged(ctx, stores, idx)
	require.NoError(t, err)

	files, _, err := layerFiles(ctx, stores.Objects(), layer)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "app.json", files[0].Path)
}

func TestCommitSpansLayersAtomically(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", model.NewGlobalBase(), []byte(`{"a":1}`)))
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", model.NewModeBase("dark"), []byte(`{"a":2}`)))
	// one path, one entry: the second stage replaced the first
	require.Equal(t, 1, idx.Len())

	require.NoError(t, StageContent(ctx, stores, idx, "other.json", model.NewGlobalBase(), []byte(`{"b":1}`)))
	result, err := CommitStaged(ctx, stores, idx)
	require.NoError(t, err)
	require.Len(t, result.Layers, 2)

	for _, lc := range result.Layers {
		_, found, err := stores.Objects().ResolveRef(ctx, lc.Ref)
		require.NoError(t, err)
		assert.True(t, found, "ref %s", lc.Ref)
	}
}

// hookStore lets a test interleave an external writer at an exact point of
// the commit sequence.
type hookStore struct {
	storage.Store
	afterPut func(key string)
}

func (h *hookStore) Put(ctx context.Context, key string, source io.Reader, exclusive bool) error {
	err := h.Store.Put(ctx, key, source, exclusive)
	if err == nil && h.afterPut != nil {
		h.afterPut(key)
	}
	return err
}

func makeCommit(t *testing.T, store *objects.Store, content string) objects.Key {
	t.Helper()
	ctx := context.Background()
	blob, err := store.PutBlob(ctx, []byte(content))
	require.NoError(t, err)
	tree, err := store.BuildNestedTree(ctx, []objects.PathEntry{{Path: "app.json", Key: blob}})
	require.NoError(t, err)
	commit, err := store.Commit(ctx, tree, "external", nil, "")
	require.NoError(t, err)
	return commit
}

func TestCommitConflictUnwindsAllOrNothing(t *testing.T) {
	backing, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)
	hook := &hookStore{Store: backing}
	stores := NewStores(
		objects.New(hook),
		hook,
		workspace.New(afero.NewMemMapFs(), ""),
	)
	// external writer bypassing the hook
	external := objects.New(backing)
	ctx := context.Background()

	globalRef, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	darkRef, _ := model.GetRefPathToLayer(model.NewModeBase("dark"))
	externalCommit := makeCommit(t, external, `{"winner":"external"}`)

	// after the first planned ref moves, an unrelated writer grabs the
	// second before the transaction gets there
	fired := false
	hook.afterPut = func(key string) {
		if key != globalRef || fired {
			return
		}
		fired = true
		require.NoError(t, external.CompareAndSwapRef(ctx, darkRef, nil, externalCommit))
	}

	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "a.json", model.NewGlobalBase(), []byte(`{"a":1}`)))
	require.NoError(t, StageContent(ctx, stores, idx, "b.json", model.NewModeBase("dark"), []byte(`{"b":1}`)))

	_, err = CommitStaged(ctx, stores, idx)
	require.Error(t, err)
	require.True(t, fired)
	assert.True(t, errors.Is(err, objstatus.ErrRefConflict))

	// all or nothing: the first ref was unwound back to absent
	_, found, err := stores.Objects().ResolveRef(ctx, globalRef)
	require.NoError(t, err)
	assert.False(t, found)

	// the external writer's ref is untouched
	head, found, err := stores.Objects().ResolveRef(ctx, darkRef)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, externalCommit, head)

	// staging survives for a retry
	assert.Equal(t, 2, idx.Len())

	// the aborted record is archived, nothing live remains
	assert.Empty(t, liveJournalKeys(t, stores))
}

func writeTransaction(t *testing.T, stores *Stores, record model.TransactionRecord) {
	t.Helper()
	data, err := yaml.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, stores.Journal().Put(context.Background(),
		model.GetJournalPathToTransaction(record.ID),
		bytes.NewReader(data), storage.OverWrite))
}

func TestRecoverRollsForward(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	layer := model.NewGlobalBase()
	seedLayer(t, stores, layer, map[string]string{"app.json": `{"a":1}`})
	refPath, _ := model.GetRefPathToLayer(layer)
	prior, _, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)
	candidate := makeCommit(t, stores.Objects(), `{"a":2}`)

	// a crash left the journal entry durable but the ref untouched
	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txroll",
		Status: model.TxPrepared,
		Updates: []model.RefUpdate{
			{Ref: refPath, Expected: prior.String(), New: candidate.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	outcomes, err := Recover(ctx, stores)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.TxCommitted, outcomes[0].Status)

	head, _, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)
	assert.Equal(t, candidate, head)
	assert.Empty(t, liveJournalKeys(t, stores))
	assert.Equal(t, model.TxCommitted, archivedRecord(t, stores, "txroll").Status)
}

func TestRecoverIdempotentOnAppliedSwap(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	refPath, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	candidate := makeCommit(t, stores.Objects(), `{"a":1}`)
	require.NoError(t, stores.Objects().CompareAndSwapRef(ctx, refPath, nil, candidate))

	// the swap landed before the crash, the completion mark did not
	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txdone",
		Status: model.TxCommitting,
		Updates: []model.RefUpdate{
			{Ref: refPath, Expected: "", New: candidate.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	outcomes, err := Recover(ctx, stores)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.TxCommitted, outcomes[0].Status)

	head, _, err := stores.Objects().ResolveRef(ctx, refPath)
	require.NoError(t, err)
	assert.Equal(t, candidate, head)
}

func TestRecoverAbortsOnForeignMove(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	globalRef, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	darkRef, _ := model.GetRefPathToLayer(model.NewModeBase("dark"))

	applied := makeCommit(t, stores.Objects(), `{"a":1}`)
	planned := makeCommit(t, stores.Objects(), `{"b":1}`)
	foreign := makeCommit(t, stores.Objects(), `{"winner":"external"}`)

	// first update already applied, second ref taken by a foreign writer
	require.NoError(t, stores.Objects().CompareAndSwapRef(ctx, globalRef, nil, applied))
	require.NoError(t, stores.Objects().CompareAndSwapRef(ctx, darkRef, nil, foreign))

	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txlost",
		Status: model.TxCommitting,
		Updates: []model.RefUpdate{
			{Ref: globalRef, Expected: "", New: applied.String(), Completed: true},
			{Ref: darkRef, Expected: "", New: planned.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	outcomes, err := Recover(ctx, stores)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.TxAborted, outcomes[0].Status)

	// the applied update was unwound (its prior was absent)
	_, found, err := stores.Objects().ResolveRef(ctx, globalRef)
	require.NoError(t, err)
	assert.False(t, found)

	head, _, err := stores.Objects().ResolveRef(ctx, darkRef)
	require.NoError(t, err)
	assert.Equal(t, foreign, head)
	assert.Equal(t, model.TxAborted, archivedRecord(t, stores, "txlost").Status)
}

func TestRecoverArchivesCommittedLeftover(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	refPath, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	candidate := makeCommit(t, stores.Objects(), `{"a":1}`)
	require.NoError(t, stores.Objects().CompareAndSwapRef(ctx, refPath, nil, candidate))

	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txarch",
		Status: model.TxCommitted,
		Updates: []model.RefUpdate{
			{Ref: refPath, Expected: "", New: candidate.String(), Completed: true},
		},
		Timestamp: time.Now().UTC(),
	})

	outcomes, err := Recover(ctx, stores)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.TxCommitted, outcomes[0].Status)
	assert.Empty(t, liveJournalKeys(t, stores))
}

func TestRecoverPrunesExactlyPublishedEntries(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	refPath, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	// the crashed transaction published app.json with this exact content
	candidate := makeCommit(t, stores.Objects(), `{"a":1}`)

	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", model.NewGlobalBase(), []byte(`{"a":1}`)))
	require.NoError(t, StageContent(ctx, stores, idx, "keep.json", model.NewProjectBase("api"), []byte(`{"k":1}`)))
	require.NoError(t, idx.Save(stores.Workspace()))

	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txprune",
		Status: model.TxPrepared,
		Updates: []model.RefUpdate{
			{Ref: refPath, Expected: "", New: candidate.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	_, err := Recover(ctx, stores)
	require.NoError(t, err)

	reloaded, err := LoadStagingIndex(stores.Workspace())
	require.NoError(t, err)
	require.Equal(t, 1, reloaded.Len())
	_, kept := reloaded.Get("keep.json")
	assert.True(t, kept)
}

func TestRecoverKeepsStagedWorkItDidNotPublish(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	globalRef, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	// the crashed transaction published app.json only, content {"a":1}
	candidate := makeCommit(t, stores.Objects(), `{"a":1}`)

	// work staged after the crash, against the same layer: a new path and
	// a restage of the published path with different content
	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "extra.json", model.NewGlobalBase(), []byte(`{"new":"work"}`)))
	require.NoError(t, StageContent(ctx, stores, idx, "app.json", model.NewGlobalBase(), []byte(`{"a":2}`)))
	require.NoError(t, idx.Save(stores.Workspace()))

	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txkeep",
		Status: model.TxPrepared,
		Updates: []model.RefUpdate{
			{Ref: globalRef, Expected: "", New: candidate.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	_, err := Recover(ctx, stores)
	require.NoError(t, err)

	head, found, err := stores.Objects().ResolveRef(ctx, globalRef)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, candidate, head)

	// neither entry was part of the recovered snapshot, both stay staged
	reloaded, err := LoadStagingIndex(stores.Workspace())
	require.NoError(t, err)
	require.Equal(t, 2, reloaded.Len())
	_, kept := reloaded.Get("extra.json")
	assert.True(t, kept)
	entry, kept := reloaded.Get("app.json")
	require.True(t, kept)
	assert.Equal(t, objects.HashOf([]byte(`{"a":2}`)).String(), entry.ContentKey)
}

func TestRecoverKeepsStagedRemovals(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	globalRef, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	candidate := makeCommit(t, stores.Objects(), `{"a":1}`)

	idx := NewStagingIndex()
	require.NoError(t, StageRemoval(idx, "app.json", model.NewGlobalBase()))
	require.NoError(t, idx.Save(stores.Workspace()))

	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txrm",
		Status: model.TxPrepared,
		Updates: []model.RefUpdate{
			{Ref: globalRef, Expected: "", New: candidate.String()},
		},
		Timestamp: time.Now().UTC(),
	})

	_, err := Recover(ctx, stores)
	require.NoError(t, err)

	reloaded, err := LoadStagingIndex(stores.Workspace())
	require.NoError(t, err)
	_, kept := reloaded.Get("app.json")
	assert.True(t, kept)
}

// failingGetStore simulates a transient read failure on one key.
type failingGetStore struct {
	storage.Store
	failKey string
}

func (f *failingGetStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == f.failKey {
		return nil, fmt.Errorf("transient read failure on %s", key)
	}
	return f.Store.Get(ctx, key)
}

func TestRecoverSkipsResolvingCompletedEntries(t *testing.T) {
	backing, err := localfs.New(afero.NewMemMapFs())
	require.NoError(t, err)
	refPath, _ := model.GetRefPathToLayer(model.NewGlobalBase())
	wrapped := &failingGetStore{Store: backing, failKey: refPath}
	stores := NewStores(
		objects.New(wrapped),
		wrapped,
		workspace.New(afero.NewMemMapFs(), ""),
	)
	ctx := context.Background()

	// the entry completed before the crash: recovery must not touch its ref
	writeTransaction(t, stores, model.TransactionRecord{
		ID:     "txskip",
		Status: model.TxCommitting,
		Updates: []model.RefUpdate{
			{Ref: refPath, Expected: "", New: strings.Repeat("a", 128), Completed: true},
		},
		Timestamp: time.Now().UTC(),
	})

	outcomes, err := Recover(ctx, stores)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, model.TxCommitted, outcomes[0].Status)
	assert.Empty(t, liveJournalKeys(t, stores))
}

func TestCommitRefusesMissingStagedContent(t *testing.T) {
	stores := testStores(t)

	idx := NewStagingIndex()
	require.NoError(t, idx.Stage(model.StagingEntry{
		Path:       "app.json",
		Layer:      model.NewGlobalBase(),
		ContentKey: objects.HashOf([]byte("never uploaded")).String(),
		Op:         model.OpAdd,
	}))

	_, err := CommitStaged(context.Background(), stores, idx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrStagedContentMissing))
}
