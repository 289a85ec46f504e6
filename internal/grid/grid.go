// Package grid implements the Grid entity of spec.md §3: a tile pyramid
// description (pixel dims, origin, units, ordered resolutions, extent)
// loaded once at config time and shared read-only by every tileset that
// references it.
package grid

import "fmt"

// Units is the grid's coordinate unit system, as named in a <grid> config
// block's "units" attribute.
type Units string

const (
	UnitsDegrees Units = "dd"
	UnitsMeters  Units = "m"
	UnitsFeet    Units = "ft"
)

// Extent is a geographic bounding box in the grid's own CRS:
// [minx, miny, maxx, maxy].
type Extent [4]float64

// Grid is a tile pyramid: per-level pixel resolution plus an origin and CRS
// extent, per spec.md §3 and §GLOSSARY.
type Grid struct {
	Name  string
	SRS   string // e.g. "EPSG:3857"
	Units Units

	TileWidth, TileHeight int // pixel dims of one tile, typically 256

	// Origin is the grid's pixel-(0,0) geographic point. Web Mercator
	// grids conventionally place this at the top-left of the extent.
	OriginX, OriginY float64

	Extent Extent

	// Resolutions is the ordered list of ground resolution (units per
	// pixel) at each zoom level, index = zoom level.
	Resolutions []float64
}

// Resolution returns the ground resolution at zoom z, or an error if z is
// out of range for this grid.
func (g *Grid) Resolution(z int) (float64, error) {
	if z < 0 || z >= len(g.Resolutions) {
		return 0, fmt.Errorf("grid %q: zoom %d out of range [0,%d)", g.Name, z, len(g.Resolutions))
	}
	return g.Resolutions[z], nil
}

// MaxZoom is the highest valid zoom level, i.e. len(Resolutions)-1.
func (g *Grid) MaxZoom() int {
	return len(g.Resolutions) - 1
}

// TileExtent computes the geographic extent of tile (z, x, y) in this
// grid's CRS. Geographic extent is computed from the grid's resolution at z
// and the integer tile origin, per spec.md §4.5.
func (g *Grid) TileExtent(z int, x, y uint32) (Extent, error) {
	res, err := g.Resolution(z)
	if err != nil {
		return Extent{}, err
	}
	tw := float64(g.TileWidth) * res
	th := float64(g.TileHeight) * res
	minx := g.OriginX + float64(x)*tw
	maxy := g.OriginY - float64(y)*th
	return Extent{minx, maxy - th, minx + tw, maxy}, nil
}

// MetatileExtent computes the absolute pixel dims and geographic extent of
// a metatile whose origin is (mx, my) at zoom z, per spec.md §4.5:
// W = metasize.w*tile.w + 2*metabuffer, similarly H.
func (g *Grid) MetatileExtent(z int, mx, my uint32, metaW, metaH, metaBuffer int) (pixelW, pixelH int, extent Extent, err error) {
	res, rerr := g.Resolution(z)
	if rerr != nil {
		return 0, 0, Extent{}, rerr
	}
	pixelW = metaW*g.TileWidth + 2*metaBuffer
	pixelH = metaH*g.TileHeight + 2*metaBuffer

	tileOriginExtent, terr := g.TileExtent(z, mx*uint32(metaW), my*uint32(metaH))
	if terr != nil {
		return 0, 0, Extent{}, terr
	}
	bufGround := float64(metaBuffer) * res
	extent = Extent{
		tileOriginExtent[0] - bufGround,
		tileOriginExtent[3] + bufGround - float64(pixelH)*res,
		tileOriginExtent[0] - bufGround + float64(pixelW)*res,
		tileOriginExtent[3] + bufGround,
	}
	return pixelW, pixelH, extent, nil
}

// WebMercator is the grid most tilesets reference: EPSG:3857, 256px tiles,
// 20 standard resolutions (z0..z19), matching the teacher's
// internal/tile.Coords Web Mercator math.
func WebMercator() *Grid {
	const earthCircumference = 2 * 20037508.342789244
	resolutions := make([]float64, 20)
	for z := range resolutions {
		tilesAtZoom := float64(uint64(1) << uint(z))
		resolutions[z] = earthCircumference / (256 * tilesAtZoom)
	}
	return &Grid{
		Name:        "WebMercator",
		SRS:         "EPSG:3857",
		Units:       UnitsMeters,
		TileWidth:   256,
		TileHeight:  256,
		OriginX:     -20037508.342789244,
		OriginY:     20037508.342789244,
		Extent:      Extent{-20037508.342789244, -20037508.342789244, 20037508.342789244, 20037508.342789244},
		Resolutions: resolutions,
	}
}
