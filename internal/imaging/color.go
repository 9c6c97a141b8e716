package imaging

import (
	"fmt"
	"math"
)

// sampleStride is the pixel step used in both axes when sampling.
const sampleStride = 5

// RGB is a color with channels normalized to [0, 1].
type RGB struct {
	R, G, B float64
}

// Hex renders the color as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", to8(c.R), to8(c.G), to8(c.B))
}

func to8(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// SampleBackgroundColor averages a grid of pixels taken every sampleStride
// pixels from the central third of the image. ok is false when the image is
// too small to produce a single sample.
func SampleBackgroundColor(b *Bitmap) (c RGB, ok bool) {
	if b == nil || b.img == nil {
		return RGB{}, false
	}
	img := b.img
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	x0, x1 := bounds.Min.X+w/3, bounds.Min.X+2*w/3
	y0, y1 := bounds.Min.Y+h/3, bounds.Min.Y+2*h/3

	var r, g, bl float64
	var n int
	for y := y0; y < y1; y += sampleStride {
		for x := x0; x < x1; x += sampleStride {
			pr, pg, pb, _ := img.At(x, y).RGBA()
			r += float64(pr) / 0xffff
			g += float64(pg) / 0xffff
			bl += float64(pb) / 0xffff
			n++
		}
	}
	if n == 0 {
		return RGB{}, false
	}
	return RGB{R: r / float64(n), G: g / float64(n), B: bl / float64(n)}, true
}
