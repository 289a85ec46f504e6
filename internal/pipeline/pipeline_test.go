package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/lock"
	"github.com/mapcache-go/mapcache/internal/metatile"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
	"github.com/mapcache-go/mapcache/internal/tileset"
)

func newTestPipeline(t *testing.T) (*Pipeline, *metatile.Assembler) {
	t.Helper()
	g := grid.WebMercator()
	c := cache.NewDisk("disk", t.TempDir())
	l := lock.NewDiskLocker(t.TempDir(), 2*time.Millisecond, time.Second)
	src := source.NewDemoSource()

	ts := &tileset.Tileset{
		Name:     "l1",
		Cache:    c,
		Source:   src,
		Format:   "image/png",
		MetaSize: tile.MetaSize{W: 2, H: 2},
		Grids:    []tileset.GridLink{{Grid: g, MinZ: 0, MaxZ: g.MaxZoom()}},
	}

	p, err := New(ts, g.Name, nil)
	require.NoError(t, err)

	asm := &metatile.Assembler{
		Tileset:  ts.Name,
		Grid:     g,
		Cache:    c,
		Source:   src,
		Locker:   l,
		MetaSize: ts.MetaSize,
		Format:   ts.Format,
	}
	return p, asm
}

func TestPipeline_GetTile_ColdMissRenders(t *testing.T) {
	p, asm := newTestPipeline(t)

	tile, err := p.GetTile(context.Background(), asm, TileRequest{Z: 3, X: 2, Y: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, tile.EncodedData)
}

func TestPipeline_GetTile_HitAfterMiss(t *testing.T) {
	p, asm := newTestPipeline(t)
	ctx := context.Background()

	_, err := p.GetTile(ctx, asm, TileRequest{Z: 3, X: 2, Y: 5})
	require.NoError(t, err)

	second, err := p.GetTile(ctx, asm, TileRequest{Z: 3, X: 2, Y: 5})
	require.NoError(t, err)
	assert.NotEmpty(t, second.EncodedData)
}

func TestPipeline_GetTile_ZoomOutOfRange(t *testing.T) {
	g := grid.WebMercator()
	p := &Pipeline{
		Tileset: &tileset.Tileset{Name: "l1", Format: "image/png"},
		Grid:    &tileset.GridLink{Grid: g, MinZ: 0, MaxZ: 5},
	}
	_, err := p.GetTile(context.Background(), nil, TileRequest{Z: 10, X: 0, Y: 0})
	require.Error(t, err)
}

func TestPipeline_GetMap_ComposesMultipleTiles(t *testing.T) {
	p, asm := newTestPipeline(t)

	img, err := p.GetMap(context.Background(), asm, []TileRequest{
		{Z: 3, X: 0, Y: 0},
		{Z: 3, X: 1, Y: 0},
	})
	require.NoError(t, err)
	require.NotNil(t, img)
	b := img.Bounds()
	assert.Equal(t, 256, b.Dx())
	assert.Equal(t, 256, b.Dy())
}

func TestPipeline_GetTile_ReadOnlyMissIsNotFound(t *testing.T) {
	g := grid.WebMercator()
	c := cache.NewDisk("disk", t.TempDir())
	ts := &tileset.Tileset{
		Name:     "l1",
		Cache:    c,
		Format:   "image/png",
		ReadOnly: true,
		Grids:    []tileset.GridLink{{Grid: g, MinZ: 0, MaxZ: g.MaxZoom()}},
	}
	p, err := New(ts, g.Name, nil)
	require.NoError(t, err)

	_, err = p.GetTile(context.Background(), nil, TileRequest{Z: 3, X: 2, Y: 5})
	require.Error(t, err)
}
