// Package composite alpha-composites an ordered stack of decoded tile
// images into one, per spec.md §4.4 step 5: "decode, compose
// (alpha-composite in tile-order) into a single image". The blend math is
// kept from the teacher's watercolor layer compositor; only the input shape
// changed, from a named-layer map to a plain ordered slice.
package composite

import (
	"fmt"
	"image"
	"image/color"
	"math"
)

// Stack alpha-composites images in order (first = bottom) into a single
// image of tileSize x tileSize. Every image must already be tileSize x
// tileSize; GET_MAP tile decoding is the caller's job.
func Stack(images []image.Image, tileSize int) (*image.NRGBA, error) {
	if tileSize <= 0 {
		return nil, fmt.Errorf("composite: tile size must be positive")
	}

	expectedBounds := image.Rect(0, 0, tileSize, tileSize)
	dst := image.NewNRGBA(expectedBounds)

	for i, img := range images {
		if img == nil {
			continue
		}
		if img.Bounds() != expectedBounds {
			return nil, fmt.Errorf("composite: image %d bounds %v do not match expected %v", i, img.Bounds(), expectedBounds)
		}
		alphaOver(dst, img)
	}

	return dst, nil
}

// Crop extracts the sub-image at rect from src into a fresh image, the way
// the metatile assembler slices a rendered metatile into child tiles
// (spec.md §4.5: "cropped at exact pixel offsets").
func Crop(src image.Image, rect image.Rectangle) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			dst.Set(x, y, src.At(rect.Min.X+x, rect.Min.Y+y))
		}
	}
	return dst
}

func alphaOver(dst *image.NRGBA, src image.Image) {
	bounds := dst.Bounds()

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			s := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			if s.A == 0 {
				continue
			}

			d := dst.NRGBAAt(x, y)

			sa := float64(s.A) / 255.0
			da := float64(d.A) / 255.0

			outA := sa + da*(1.0-sa)
			if outA == 0 {
				dst.SetNRGBA(x, y, color.NRGBA{})
				continue
			}

			blend := func(srcVal, dstVal uint8) uint8 {
				srcPremult := float64(srcVal) * sa
				dstPremult := float64(dstVal) * da
				outPremult := srcPremult + dstPremult*(1.0-sa)
				return uint8(math.Round(outPremult / outA))
			}

			dst.SetNRGBA(x, y, color.NRGBA{
				R: blend(s.R, d.R),
				G: blend(s.G, d.G),
				B: blend(s.B, d.B),
				A: uint8(math.Round(outA * 255.0)),
			})
		}
	}
}
