package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisk_SetThenGetRoundTrips(t *testing.T) {
	d := NewDisk("disk", t.TempDir())

	in := tile("ts", 5, 2, 3)
	in.EncodedData = []byte("bytes")
	require.NoError(t, d.Set(context.Background(), in))

	out := tile("ts", 5, 2, 3)
	result, err := d.Get(context.Background(), out)
	require.NoError(t, err)
	assert.Equal(t, Success, result)
	assert.Equal(t, []byte("bytes"), out.EncodedData)
}

func TestDisk_GetMissReturnsMissNotError(t *testing.T) {
	d := NewDisk("disk", t.TempDir())
	result, err := d.Get(context.Background(), tile("ts", 5, 2, 3))
	require.NoError(t, err)
	assert.Equal(t, Miss, result)
}

func TestDisk_SetCreatesParentDirectories(t *testing.T) {
	d := NewDisk("disk", t.TempDir())
	in := tile("deep/tileset", 9, 100, 200)
	in.EncodedData = []byte("x")
	require.NoError(t, d.Set(context.Background(), in))

	ok, err := d.Exists(context.Background(), tile("deep/tileset", 9, 100, 200))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDisk_DeleteThenExistsIsFalse(t *testing.T) {
	d := NewDisk("disk", t.TempDir())
	in := tile("ts", 1, 0, 0)
	in.EncodedData = []byte("x")
	require.NoError(t, d.Set(context.Background(), in))
	require.NoError(t, d.Delete(context.Background(), tile("ts", 1, 0, 0)))

	ok, err := d.Exists(context.Background(), tile("ts", 1, 0, 0))
	require.NoError(t, err)
	assert.False(t, ok)
}
