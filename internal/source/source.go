// Package source defines the "render metatile" collaborator spec.md §1
// explicitly keeps out of scope ("the core only invokes a 'render metatile'
// collaborator"). Its shape is grounded on the teacher's
// internal/datasource.OverpassDataSource.FetchTileDataWithBounds: a fetch
// keyed by pixel/geographic extent that returns a decoded image.Image.
package source

import (
	"context"
	"image"

	"github.com/mapcache-go/mapcache/internal/grid"
)

// Request describes one metatile render: the pixel dimensions to produce
// and the geographic extent (in the grid's CRS) it must cover, plus any
// dimension values (WMS STYLES/TIME-equivalent) the tileset passes through.
type Request struct {
	Grid       *grid.Grid
	Extent     grid.Extent
	PixelW     int
	PixelH     int
	Format     string
	Dimensions map[string]string
}

// Source renders a metatile-sized image for the given request. It is the
// sole collaborator the metatile assembler calls on a cache miss; no
// rendering algorithm is specified here (spec.md Non-goals).
type Source interface {
	Name() string
	Render(ctx context.Context, req Request) (image.Image, error)
}
