// Package metatile implements the metatile assembler of spec.md §4.4 step 4
// and §4.5: lock the metatile key, re-check the cache (a peer may have
// finished between miss and lock acquire), render the whole metatile via
// the source collaborator, crop into child tiles, write them all (using
// tile_multi_set when the backend supports it), release the lock.
package metatile

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/composite"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/lock"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
)

// Assembler renders and caches a metatile under lock for one tileset.
type Assembler struct {
	Tileset    string
	Grid       *grid.Grid
	Cache      cache.Cache
	Source     source.Source
	Locker     lock.Locker
	MetaSize   tile.MetaSize
	MetaBuffer int
	Format     string
	Logger     *slog.Logger
}

// EnsureTiles satisfies a set of missing tiles that share one metatile, per
// spec.md §4.4 steps 3-4. Tiles not in `missing` after the re-check (a peer
// already wrote them) are still returned, read fresh from the cache.
func (a *Assembler) EnsureTiles(ctx context.Context, mc tile.MetaCoords, missing []*cache.Tile, dimensions map[string]string) ([]*cache.Tile, error) {
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
	metaKey := tile.MetaKey(a.Tileset, a.Grid.Name, mc, dimensions)

	acquired, lk, err := lock.LockOrWait(ctx, a.Locker, metaKey, a.Logger)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindLockStale, 500, err, "metatile %s: lock_or_wait", metaKey)
	}

	if !acquired {
		// A peer rendered it (or the lock was stale and someone else will
		// retry); re-read the cache for every originally-missing tile.
		return a.reread(ctx, missing)
	}

	defer func() {
		if relErr := a.Locker.Release(ctx, lk); relErr != nil {
			a.Logger.Warn("metatile: lock release failed", "key", metaKey, "error", relErr)
		}
	}()

	// Re-check: another worker may have written between our cache miss and
	// our lock acquire.
	stillMissing := make([]*cache.Tile, 0, len(missing))
	for _, t := range missing {
		result, err := a.Cache.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		if result != cache.Success {
			stillMissing = append(stillMissing, t)
		}
	}
	if len(stillMissing) == 0 {
		return missing, nil
	}

	allTiles, err := a.render(ctx, mc, dimensions)
	if err != nil {
		return nil, err
	}

	if err := a.writeAll(ctx, allTiles); err != nil {
		return nil, err
	}

	return a.reread(ctx, missing)
}

func (a *Assembler) reread(ctx context.Context, tiles []*cache.Tile) ([]*cache.Tile, error) {
	out := make([]*cache.Tile, 0, len(tiles))
	for _, t := range tiles {
		fresh := &cache.Tile{Tileset: t.Tileset, Grid: t.Grid, Z: t.Z, X: t.X, Y: t.Y, Dimensions: t.Dimensions}
		result, err := a.Cache.Get(ctx, fresh)
		if err != nil {
			return nil, err
		}
		if result != cache.Success {
			return nil, apperr.New(apperr.KindInternal, 500, "metatile: tile %s still missing after lock release", fresh.Key())
		}
		out = append(out, fresh)
	}
	return out, nil
}

// render asks the source for the whole metatile block and crops it into
// child tiles, per spec.md §4.5.
func (a *Assembler) render(ctx context.Context, mc tile.MetaCoords, dimensions map[string]string) ([]*cache.Tile, error) {
	pixelW, pixelH, extent, err := a.Grid.MetatileExtent(int(mc.Z), mc.MX, mc.MY, a.MetaSize.W, a.MetaSize.H, a.MetaBuffer)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadRequest, 400, err, "metatile: compute extent")
	}

	img, err := a.Source.Render(ctx, source.Request{
		Grid:       a.Grid,
		Extent:     extent,
		PixelW:     pixelW,
		PixelH:     pixelH,
		Format:     a.Format,
		Dimensions: dimensions,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, 502, err, "metatile: source render")
	}

	tiles := make([]*cache.Tile, 0, a.MetaSize.W*a.MetaSize.H)
	for ty := 0; ty < a.MetaSize.H; ty++ {
		for tx := 0; tx < a.MetaSize.W; tx++ {
			rect := image.Rect(
				a.MetaBuffer+tx*a.Grid.TileWidth,
				a.MetaBuffer+ty*a.Grid.TileHeight,
				a.MetaBuffer+(tx+1)*a.Grid.TileWidth,
				a.MetaBuffer+(ty+1)*a.Grid.TileHeight,
			)
			cropped := composite.Crop(img, rect)

			encoded, err := encode(cropped, a.Format)
			if err != nil {
				return nil, apperr.Internal(err, "metatile: encode child tile")
			}

			tiles = append(tiles, &cache.Tile{
				Tileset:     a.Tileset,
				Grid:        a.Grid.Name,
				Z:           int(mc.Z),
				X:           int(mc.MX)*a.MetaSize.W + tx,
				Y:           int(mc.MY)*a.MetaSize.H + ty,
				Dimensions:  dimensions,
				EncodedData: encoded,
			})
		}
	}
	return tiles, nil
}

func (a *Assembler) writeAll(ctx context.Context, tiles []*cache.Tile) error {
	return a.Cache.MultiSet(ctx, tiles)
}

func encode(img image.Image, format string) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case "image/jpeg", "jpeg":
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
			return nil, err
		}
	default:
		if err := png.Encode(&buf, img); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
