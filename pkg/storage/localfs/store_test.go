package localfs

import (
	"bytes"
	"context"
	"io/ioutil"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataconf/strata/pkg/storage"
)

func setupStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := New(afero.NewMemMapFs())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "sixteentons", bytes.NewBufferString("this is the text"), storage.OverWrite))
	require.NoError(t, store.Put(ctx, "nested/seventeentons", bytes.NewBufferString("this is the text for another thing"), storage.OverWrite))
	return store
}

func TestHas(t *testing.T) {
	bs := setupStore(t)

	has, err := bs.Has(context.Background(), "sixteentons")
	require.NoError(t, err)
	require.True(t, has)

	has, err = bs.Has(context.Background(), "fifteentons")
	require.NoError(t, err)
	require.False(t, has)
}

func TestGet(t *testing.T) {
	bs := setupStore(t)

	rdr, err := bs.Get(context.Background(), "nested/seventeentons")
	require.NoError(t, err)
	b, err := ioutil.ReadAll(rdr)
	require.NoError(t, err)
	require.NoError(t, rdr.Close())
	assert.Equal(t, "this is the text for another thing", string(b))

	_, err = bs.Get(context.Background(), "fifteentons")
	require.Error(t, err)
	assert.True(t, storage.IsNotExists(err))
}

func TestPutExclusive(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	err := bs.Put(ctx, "locks/one", bytes.NewBufferString("first"), storage.IfNotPresent)
	require.NoError(t, err)

	err = bs.Put(ctx, "locks/one", bytes.NewBufferString("second"), storage.IfNotPresent)
	require.Error(t, err)
	assert.True(t, storage.IsExists(err))

	// the loser must not have clobbered the winner
	b, err := storage.ReadAll(ctx, bs, "locks/one")
	require.NoError(t, err)
	assert.Equal(t, "first", string(b))
}

func TestPutOverwrite(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	require.NoError(t, bs.Put(ctx, "sixteentons", bytes.NewBufferString("rewritten"), storage.OverWrite))
	b, err := storage.ReadAll(ctx, bs, "sixteentons")
	require.NoError(t, err)
	assert.Equal(t, "rewritten", string(b))
}

func TestKeysHideStagingArea(t *testing.T) {
	bs := setupStore(t)

	keys, err := bs.Keys(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"sixteentons", "nested/seventeentons"}, keys)
}

func TestKeysPrefix(t *testing.T) {
	bs := setupStore(t)

	keys, err := bs.KeysPrefix(context.Background(), "nested/")
	require.NoError(t, err)
	assert.Equal(t, []string{"nested/seventeentons"}, keys)
}

func TestDelete(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	require.NoError(t, bs.Delete(ctx, "sixteentons"))
	has, err := bs.Has(ctx, "sixteentons")
	require.NoError(t, err)
	assert.False(t, has)

	// deleting an absent key is not an error
	require.NoError(t, bs.Delete(ctx, "sixteentons"))
}

func TestInvalidKeys(t *testing.T) {
	bs := setupStore(t)
	ctx := context.Background()

	for _, key := range []string{"", ".put-stage/x", "../escape"} {
		err := bs.Put(ctx, key, bytes.NewBufferString("x"), storage.OverWrite)
		require.Error(t, err, "key %q", key)
	}
}
