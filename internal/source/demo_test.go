package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDemoSource_RendersRequestedDimensions(t *testing.T) {
	d := NewDemoSource()
	img, err := d.Render(context.Background(), Request{PixelW: 64, PixelH: 32, Format: "image/png"})
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.Equal(t, 64, bounds.Dx())
	assert.Equal(t, 32, bounds.Dy())
}

func TestDemoSource_IsDeterministic(t *testing.T) {
	d := NewDemoSource()
	req := Request{PixelW: 16, PixelH: 16, Format: "image/png"}
	img1, err := d.Render(context.Background(), req)
	require.NoError(t, err)
	img2, err := d.Render(context.Background(), req)
	require.NoError(t, err)

	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			r1, g1, b1, a1 := img1.At(x, y).RGBA()
			r2, g2, b2, a2 := img2.At(x, y).RGBA()
			assert.Equal(t, [4]uint32{r1, g1, b1, a1}, [4]uint32{r2, g2, b2, a2})
		}
	}
}
