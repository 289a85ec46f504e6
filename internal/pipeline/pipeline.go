// Package pipeline implements the Tile Request Pipeline of spec.md §4.4:
// cache lookup, miss-path metatile rendering under lock, and response
// assembly, with at-most-once rendering guaranteed by the locker
// (spec.md §4.3/§8 property 1).
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/mapcache-go/mapcache/internal/apperr"
	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/composite"
	"github.com/mapcache-go/mapcache/internal/metatile"
	"github.com/mapcache-go/mapcache/internal/tile"
	"github.com/mapcache-go/mapcache/internal/tileset"
)

// TileRequest identifies one tile within a tileset/grid, the unit GetTile
// and GetMap both operate on.
type TileRequest struct {
	Z, X, Y    int
	Dimensions map[string]string
}

// Pipeline drives the GET_TILE/GET_MAP control flow for a single tileset,
// per spec.md §4.4. One Pipeline is built per (tileset, grid) pair the
// endpoint registry resolves a request to. The metatile.Assembler that
// actually holds the lock.Locker and source.Source is passed explicitly to
// GetTile/GetMap rather than stored here, since a tileset may be invoked
// through more than one assembler configuration in tests.
type Pipeline struct {
	Tileset *tileset.Tileset
	Grid    *tileset.GridLink
	Logger  *slog.Logger
}

// New builds a Pipeline for one tileset+grid pair. Callers separately
// build the metatile.Assembler (tied to the tileset's cache/source/locker)
// that GetTile/GetMap use to satisfy misses.
func New(ts *tileset.Tileset, gridName string, logger *slog.Logger) (*Pipeline, error) {
	gl := ts.FindGrid(gridName)
	if gl == nil {
		return nil, apperr.NotFound("pipeline: tileset %q does not serve grid %q", ts.Name, gridName)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{Tileset: ts, Grid: gl, Logger: logger}, nil
}

// resolveDimensions merges per-request dimension overrides onto the tileset's
// defaults and validates the requested dimension values, per spec.md §3's
// Tileset.Dimensions schema.
func (p *Pipeline) resolveDimensions(in map[string]string) (map[string]string, error) {
	out := p.Tileset.DimensionDefaults()
	for _, d := range p.Tileset.Dimensions {
		if v, ok := in[d.Name]; ok {
			if len(d.Values) > 0 && !contains(d.Values, v) {
				return nil, apperr.BadRequest("pipeline: dimension %q value %q not allowed", d.Name, v)
			}
			if out == nil {
				out = make(map[string]string)
			}
			out[d.Name] = v
		}
	}
	return out, nil
}

func contains(vs []string, v string) bool {
	for _, x := range vs {
		if x == v {
			return true
		}
	}
	return false
}

// GetTile implements spec.md §4.4 steps 1-4 for a single tile: cache
// lookup, and on miss, metatile render under lock via asm.
func (p *Pipeline) GetTile(ctx context.Context, asm *metatile.Assembler, req TileRequest) (*cache.Tile, error) {
	if req.Z < p.Grid.MinZ || req.Z > p.Grid.MaxZ {
		return nil, apperr.BadRequest("pipeline: zoom %d outside tileset %q range [%d,%d] on grid %q", req.Z, p.Tileset.Name, p.Grid.MinZ, p.Grid.MaxZ, p.Grid.Grid.Name)
	}

	dims, err := p.resolveDimensions(req.Dimensions)
	if err != nil {
		return nil, err
	}

	t := &cache.Tile{
		Tileset:    p.Tileset.Name,
		Grid:       p.Grid.Grid.Name,
		Z:          req.Z,
		X:          req.X,
		Y:          req.Y,
		Dimensions: dims,
	}

	result, err := p.Tileset.Cache.Get(ctx, t)
	if err != nil {
		return nil, err
	}
	if result == cache.Success {
		return t, nil
	}

	if p.Tileset.ReadOnly {
		return nil, apperr.NotFound("pipeline: tile %s not present in read-only tileset %q", t.Key(), p.Tileset.Name)
	}

	coords := tile.NewCoords(uint32(req.Z), uint32(req.X), uint32(req.Y))
	mc := coords.Meta(p.Tileset.MetaSize)

	rendered, err := asm.EnsureTiles(ctx, mc, []*cache.Tile{t}, dims)
	if err != nil {
		return nil, err
	}
	if len(rendered) == 0 {
		return nil, apperr.Internal(nil, "pipeline: metatile render for %s produced no tiles", t.Key())
	}
	return rendered[0], nil
}

// GetMap implements spec.md §4.4 step 5's multi-tile path: fetch every
// requested tile (rendering misses as needed, grouped by metatile so a
// shared metatile is rendered once), decode, and alpha-composite them in
// request order into a single image, ready for the caller to re-encode
// using the tileset's format.
func (p *Pipeline) GetMap(ctx context.Context, asm *metatile.Assembler, reqs []TileRequest) (image.Image, error) {
	if len(reqs) == 0 {
		return nil, apperr.BadRequest("pipeline: GetMap requires at least one tile")
	}

	// Group requests that fall in the same metatile so each metatile is
	// locked and rendered at most once for this call, per spec.md §4.4
	// step 3's "for each unique meta_key".
	type group struct {
		mc      tile.MetaCoords
		dims    map[string]string
		tiles   []*cache.Tile
		indices []int
	}
	groups := make(map[string]*group)
	order := make([]string, 0, len(reqs))
	results := make([]*cache.Tile, len(reqs))

	for i, r := range reqs {
		if r.Z < p.Grid.MinZ || r.Z > p.Grid.MaxZ {
			return nil, apperr.BadRequest("pipeline: zoom %d outside tileset %q range", r.Z, p.Tileset.Name)
		}
		dims, err := p.resolveDimensions(r.Dimensions)
		if err != nil {
			return nil, err
		}
		t := &cache.Tile{Tileset: p.Tileset.Name, Grid: p.Grid.Grid.Name, Z: r.Z, X: r.X, Y: r.Y, Dimensions: dims}
		result, err := p.Tileset.Cache.Get(ctx, t)
		if err != nil {
			return nil, err
		}
		if result == cache.Success {
			results[i] = t
			continue
		}

		coords := tile.NewCoords(uint32(r.Z), uint32(r.X), uint32(r.Y))
		mc := coords.Meta(p.Tileset.MetaSize)
		key := tile.MetaKey(p.Tileset.Name, p.Grid.Grid.Name, mc, dims)
		g, ok := groups[key]
		if !ok {
			g = &group{mc: mc, dims: dims}
			groups[key] = g
			order = append(order, key)
		}
		g.tiles = append(g.tiles, t)
		g.indices = append(g.indices, i)
	}

	for _, key := range order {
		g := groups[key]
		rendered, err := asm.EnsureTiles(ctx, g.mc, g.tiles, g.dims)
		if err != nil {
			return nil, err
		}
		for j, idx := range g.indices {
			results[idx] = rendered[j]
		}
	}

	images := make([]image.Image, 0, len(results))
	for _, t := range results {
		if t == nil {
			return nil, apperr.Internal(nil, "pipeline: GetMap missing a resolved tile")
		}
		img, err := decode(t.EncodedData)
		if err != nil {
			return nil, apperr.Internal(err, "pipeline: decode tile %s", t.Key())
		}
		images = append(images, img)
	}

	return composite.Stack(images, p.Grid.Grid.TileWidth)
}

func decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile image: %w", err)
	}
	return img, nil
}
