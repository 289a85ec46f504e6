package metatile

import (
	"context"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/lock"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
)

type countingSource struct {
	renders int32
	delay   time.Duration
	inner   source.Source
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Render(ctx context.Context, req source.Request) (image.Image, error) {
	atomic.AddInt32(&c.renders, 1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.inner.Render(ctx, req)
}

func newAssembler(t *testing.T, src *countingSource) (*Assembler, *cache.Disk) {
	t.Helper()
	c := cache.NewDisk("disk", t.TempDir())
	l := lock.NewDiskLocker(t.TempDir(), 2*time.Millisecond, time.Second)
	g := grid.WebMercator()
	return &Assembler{
		Tileset:    "l1",
		Grid:       g,
		Cache:      c,
		Source:     src,
		Locker:     l,
		MetaSize:   tile.MetaSize{W: 2, H: 2},
		MetaBuffer: 0,
		Format:     "image/png",
	}, c
}

func missingTile(x, y int) *cache.Tile {
	return &cache.Tile{Tileset: "l1", Grid: "WebMercator", Z: 3, X: x, Y: y}
}

func TestAssembler_RendersOnceUnderLock(t *testing.T) {
	src := &countingSource{inner: source.NewDemoSource()}
	a, _ := newAssembler(t, src)

	mc := tile.MetaCoords{Z: 3, MX: 0, MY: 0}
	out, err := a.EnsureTiles(context.Background(), mc, []*cache.Tile{missingTile(0, 0)}, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.NotEmpty(t, out[0].EncodedData)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.renders))
}

func TestAssembler_WritesAllTilesInMetatile(t *testing.T) {
	src := &countingSource{inner: source.NewDemoSource()}
	a, c := newAssembler(t, src)

	mc := tile.MetaCoords{Z: 3, MX: 0, MY: 0}
	_, err := a.EnsureTiles(context.Background(), mc, []*cache.Tile{missingTile(0, 0)}, nil)
	require.NoError(t, err)

	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			ok, err := c.Exists(context.Background(), missingTile(x, y))
			require.NoError(t, err)
			assert.True(t, ok, "tile %d,%d should have been written as part of the metatile", x, y)
		}
	}
}

func TestAssembler_ConcurrentMissesCollapseToOneRender(t *testing.T) {
	src := &countingSource{inner: source.NewDemoSource(), delay: 20 * time.Millisecond}
	a, _ := newAssembler(t, src)
	mc := tile.MetaCoords{Z: 3, MX: 0, MY: 0}

	const workers = 20
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.EnsureTiles(context.Background(), mc, []*cache.Tile{missingTile(0, 0)}, nil)
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.renders), "exactly one render across all concurrent misses")
}

func TestAssembler_SecondRequestIsPureCacheHitNoRender(t *testing.T) {
	src := &countingSource{inner: source.NewDemoSource()}
	a, _ := newAssembler(t, src)
	mc := tile.MetaCoords{Z: 3, MX: 0, MY: 0}

	_, err := a.EnsureTiles(context.Background(), mc, []*cache.Tile{missingTile(0, 0)}, nil)
	require.NoError(t, err)

	// Simulate the pipeline's own cache.Get finding the tile this time, so
	// EnsureTiles is not even called again in a real flow; here we assert
	// that a second EnsureTiles call on an already-populated metatile does
	// not trigger a second render: the lock is acquired uncontended and the
	// re-check under it finds the tile already present.
	_, err = a.EnsureTiles(context.Background(), mc, []*cache.Tile{missingTile(1, 1)}, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&src.renders))
}
