package cache

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLite_SetThenGetRoundTrips(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "cache.sqlite")
	c, err := NewSQLite("sq", dbPath)
	require.NoError(t, err)
	defer c.Close()

	in := tile("ts", 3, 1, 1)
	in.EncodedData = []byte("tile-bytes")
	require.NoError(t, c.Set(context.Background(), in))

	out := tile("ts", 3, 1, 1)
	result, err := c.Get(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, Success, result)
	assert.Equal(t, []byte("tile-bytes"), out.EncodedData)
	assert.False(t, out.MTime.IsZero())
}

func TestSQLite_GetMissReturnsMissNotError(t *testing.T) {
	c, err := NewSQLite("sq", filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer c.Close()

	result, err := c.Get(context.Background(), tile("ts", 3, 1, 1))
	require.NoError(t, err)
	assert.Equal(t, Miss, result)
}

func TestSQLite_DeleteIsIdempotent(t *testing.T) {
	c, err := NewSQLite("sq", filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Delete(context.Background(), tile("ts", 3, 1, 1)))

	in := tile("ts", 3, 1, 1)
	in.EncodedData = []byte("x")
	require.NoError(t, c.Set(context.Background(), in))
	require.NoError(t, c.Delete(context.Background(), tile("ts", 3, 1, 1)))
	require.NoError(t, c.Delete(context.Background(), tile("ts", 3, 1, 1)))

	ok, err := c.Exists(context.Background(), tile("ts", 3, 1, 1))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLite_MultiSetWritesAllTiles(t *testing.T) {
	c, err := NewSQLite("sq", filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer c.Close()

	tiles := []*Tile{tile("ts", 1, 0, 0), tile("ts", 1, 1, 0), tile("ts", 1, 0, 1)}
	for i, tl := range tiles {
		tl.EncodedData = []byte{byte(i)}
	}
	require.NoError(t, c.MultiSet(context.Background(), tiles))

	for i, tl := range tiles {
		out := tile("ts", tl.Z, tl.X, tl.Y)
		result, err := c.Get(context.Background(), out)
		require.NoError(t, err)
		assert.Equal(t, Success, result)
		assert.Equal(t, []byte{byte(i)}, out.EncodedData)
	}
}

func TestSQLite_MultiSetRejectsTileWithoutEncodedData(t *testing.T) {
	c, err := NewSQLite("sq", filepath.Join(t.TempDir(), "cache.sqlite"))
	require.NoError(t, err)
	defer c.Close()

	err = c.MultiSet(context.Background(), []*Tile{tile("ts", 1, 0, 0)})
	assert.Error(t, err)
}
