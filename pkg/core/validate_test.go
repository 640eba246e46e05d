package core

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataconf/strata/pkg/core/status"
	"github.com/strataconf/strata/pkg/errors"
	"github.com/strataconf/strata/pkg/model"
)

func driftCauses(result *ValidationResult) []DriftCause {
	var causes []DriftCause
	for _, d := range result.Drifts {
		causes = append(causes, d.Cause)
	}
	return causes
}

func TestValidateFreshWorkspaceIsAttached(t *testing.T) {
	stores := testStores(t)

	// no metadata on record, nothing to drift from, even with an unknown mode
	result, err := Validate(context.Background(), stores, "api", "ghost", "")
	require.NoError(t, err)
	assert.True(t, result.Attached)
	assert.Empty(t, result.Drifts)
}

func TestMaterializeThenValidate(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\nsize: 10\n",
	})
	seedLayer(t, stores, model.NewModeBase("dark"), map[string]string{
		"app.yaml": "theme: dark\n",
	})

	result, err := Materialize(ctx, stores, "api", "dark", "", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.yaml"}, result.Paths)

	data, err := stores.Workspace().ReadFile("app.yaml")
	require.NoError(t, err)
	assert.Equal(t, "theme: dark\nsize: 10\n", string(data))

	v, err := Validate(ctx, stores, "api", "dark", "")
	require.NoError(t, err)
	assert.True(t, v.Attached)
}

func TestValidateDetectsExternalEdit(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)

	require.NoError(t, stores.Workspace().WriteFileAtomic("app.yaml", []byte("theme: hacked\n")))

	result, err := Validate(ctx, stores, "api", "", "")
	require.NoError(t, err)
	assert.False(t, result.Attached)
	assert.Contains(t, driftCauses(result), DriftFileChanged)
	assert.NotEmpty(t, result.RecoveryHint)
}

func TestValidateDetectsRemovedFile(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)
	require.NoError(t, stores.Workspace().RemoveFile("app.yaml"))

	result, err := Validate(ctx, stores, "api", "", "")
	require.NoError(t, err)
	assert.False(t, result.Attached)
	assert.Contains(t, driftCauses(result), DriftFileChanged)
}

func TestValidateDetectsPrunedHistory(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	// metadata referencing a commit the store never held
	ghost := strings.Repeat("0", 128)
	require.NoError(t, stores.Workspace().SaveMetadata(model.WorkspaceMetadata{
		Timestamp: time.Now().UTC(),
		Sources: []model.LayerSource{
			{Layer: model.NewGlobalBase(), CommitID: ghost},
		},
	}))

	result, err := Validate(ctx, stores, "api", "", "")
	require.NoError(t, err)
	assert.False(t, result.Attached)
	assert.Contains(t, driftCauses(result), DriftHistoryPruned)
}

func TestValidateDetectsUnresolvedMode(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)

	result, err := Validate(ctx, stores, "api", "ghost", "")
	require.NoError(t, err)
	assert.False(t, result.Attached)
	assert.Contains(t, driftCauses(result), DriftLayerUnresolved)
}

func TestGateDestructive(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)
	require.NoError(t, stores.Workspace().WriteFileAtomic("app.yaml", []byte("tampered\n")))

	err = GateDestructive(ctx, stores, "api", "", "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrDetached))

	// the override skips validation entirely
	require.NoError(t, GateDestructive(ctx, stores, "api", "", "", true))
}

func TestMaterializeRefusedWhenDetached(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)
	require.NoError(t, stores.Workspace().WriteFileAtomic("app.yaml", []byte("tampered\n")))

	_, err = Materialize(ctx, stores, "api", "", "", false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrDetached))

	// forcing re-attaches
	_, err = Materialize(ctx, stores, "api", "", "", true)
	require.NoError(t, err)
	data, err := stores.Workspace().ReadFile("app.yaml")
	require.NoError(t, err)
	assert.Equal(t, "theme: light\n", string(data))

	v, err := Validate(ctx, stores, "api", "", "")
	require.NoError(t, err)
	assert.True(t, v.Attached)
}

func TestCommitAllowedWhenDetached(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\n",
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)
	require.NoError(t, stores.Workspace().WriteFileAtomic("app.yaml", []byte("tampered\n")))

	// detached for destructive purposes
	err = GateDestructive(ctx, stores, "api", "", "", false)
	require.Error(t, err)

	// commit only moves refs, never workspace files, so it is not gated
	idx := NewStagingIndex()
	require.NoError(t, StageContent(ctx, stores, idx, "extra.yaml", model.NewGlobalBase(), []byte("added: true\n")))
	result, err := CommitStaged(ctx, stores, idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"extra.yaml"}, result.Paths)

	// the tampered file is untouched by the commit
	data, err := stores.Workspace().ReadFile("app.yaml")
	require.NoError(t, err)
	assert.Equal(t, "tampered\n", string(data))
}

func TestMaterializeAppliesLocalOverlay(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	seedLayer(t, stores, model.NewGlobalBase(), map[string]string{
		"app.yaml": "theme: light\nsize: 10\n",
	})
	require.NoError(t, stores.Workspace().WriteFileAtomic(
		".strata/local/app.yaml", []byte("size: 99\n")))

	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)

	data, err := stores.Workspace().ReadFile("app.yaml")
	require.NoError(t, err)
	assert.Equal(t, "theme: light\nsize: 99\n", string(data))
}

func TestMaterializeRemovesStaleFiles(t *testing.T) {
	stores := testStores(t)
	ctx := context.Background()

	layer := model.NewGlobalBase()
	seedLayer(t, stores, layer, map[string]string{
		"app.yaml":   "theme: light\n",
		"extra.json": `{"x":1}`,
	})
	_, err := Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)

	idx := NewStagingIndex()
	require.NoError(t, StageRemoval(idx, "extra.json", layer))
	_, err = CommitStaged(ctx, stores, idx)
	require.NoError(t, err)

	_, err = Materialize(ctx, stores, "api", "", "", false)
	require.NoError(t, err)

	_, found, err := stores.Workspace().HashFile("extra.json")
	require.NoError(t, err)
	assert.False(t, found)
	_, found, err = stores.Workspace().HashFile("app.yaml")
	require.NoError(t, err)
	assert.True(t, found)
}
