// Package tileset implements the Tileset entity of spec.md §3: the binding
// of a source, a cache, a format, and one or more grids, plus the
// per-tileset policy knobs (metasize, metabuffer, expiry, read-only,
// auto-expire, dimensions schema).
package tileset

import (
	"time"

	"github.com/mapcache-go/mapcache/internal/cache"
	"github.com/mapcache-go/mapcache/internal/grid"
	"github.com/mapcache-go/mapcache/internal/source"
	"github.com/mapcache-go/mapcache/internal/tile"
)

// GridLink binds a grid to a tileset along with the zoom range this
// tileset serves on it, per the XML config's <grid> child under <tileset>.
type GridLink struct {
	Grid       *grid.Grid
	MinZ, MaxZ int
}

// DimensionSpec describes one named dimension a tileset's tiles may vary
// over (e.g. "TIME", "STYLE"), with the set of allowed values and a default.
type DimensionSpec struct {
	Name    string
	Default string
	Values  []string // empty means unconstrained
}

// Tileset is the process-lifetime, config-owned binding spec.md §3 and
// §GLOSSARY describe.
type Tileset struct {
	Name   string
	Source source.Source
	Cache  cache.Cache
	Format string // e.g. "image/png", "image/jpeg"

	Grids      []GridLink
	Dimensions []DimensionSpec

	MetaSize   tile.MetaSize
	MetaBuffer int

	Expires    time.Duration
	AutoExpire bool
	ReadOnly   bool
}

// FindGrid returns the GridLink for the named grid, or nil if this tileset
// does not serve that grid.
func (ts *Tileset) FindGrid(name string) *GridLink {
	for i := range ts.Grids {
		if ts.Grids[i].Grid.Name == name {
			return &ts.Grids[i]
		}
	}
	return nil
}

// DimensionDefaults returns a map of every dimension's default value,
// suitable as a starting point before a request's own dimension values are
// overlaid.
func (ts *Tileset) DimensionDefaults() map[string]string {
	if len(ts.Dimensions) == 0 {
		return nil
	}
	out := make(map[string]string, len(ts.Dimensions))
	for _, d := range ts.Dimensions {
		out[d.Name] = d.Default
	}
	return out
}

// ValidateZoom reports whether z is within the serving range for gridName,
// returning the resolved GridLink on success.
func (ts *Tileset) ValidateZoom(gridName string, z int) (*GridLink, bool) {
	gl := ts.FindGrid(gridName)
	if gl == nil {
		return nil, false
	}
	if z < gl.MinZ || z > gl.MaxZ {
		return nil, false
	}
	return gl, true
}
