package source

import (
	"context"
	"image"
	"image/color"
)

// DemoSource is a deterministic, pure-Go checkerboard generator. It exists
// for tests and for the XML config's <source type="demo"> (or a <source>
// with no type), never for real map rendering (out of scope per spec.md §1).
type DemoSource struct {
	CellSize int
	ColorA   color.Color
	ColorB   color.Color
}

func NewDemoSource() *DemoSource {
	return &DemoSource{
		CellSize: 32,
		ColorA:   color.RGBA{R: 200, G: 200, B: 200, A: 255},
		ColorB:   color.RGBA{R: 120, G: 120, B: 120, A: 255},
	}
}

func (d *DemoSource) Name() string { return "demo" }

func (d *DemoSource) Render(ctx context.Context, req Request) (image.Image, error) {
	cell := d.CellSize
	if cell <= 0 {
		cell = 32
	}
	img := image.NewRGBA(image.Rect(0, 0, req.PixelW, req.PixelH))
	for y := 0; y < req.PixelH; y++ {
		for x := 0; x < req.PixelW; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, d.ColorA)
			} else {
				img.Set(x, y, d.ColorB)
			}
		}
	}
	return img, nil
}
