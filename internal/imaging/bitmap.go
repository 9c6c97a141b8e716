// Package imaging holds the decoded image type shared by the cache, the
// loader and the importer, plus the decoders and the color sampler.
package imaging

import (
	"image"
)

// Bitmap is a decoded raster image. It is treated as read-only once created;
// the cache and every caller share the same underlying pixels.
type Bitmap struct {
	img    image.Image
	format string
	size   int64
}

// NewBitmap wraps a decoded image and records its pixel buffer footprint.
func NewBitmap(img image.Image, format string) *Bitmap {
	return &Bitmap{img: img, format: format, size: ByteSize(img)}
}

func (b *Bitmap) Image() image.Image { return b.img }
func (b *Bitmap) Format() string     { return b.format }
func (b *Bitmap) Width() int         { return b.img.Bounds().Dx() }
func (b *Bitmap) Height() int        { return b.img.Bounds().Dy() }

// ByteSize is the decoded size in bytes (row stride times height).
func (b *Bitmap) ByteSize() int64 { return b.size }

// ByteSize returns rowStride*height for the pixel buffer backing img.
// Images without an addressable buffer are sized as 4 bytes per pixel.
func ByteSize(img image.Image) int64 {
	if img == nil {
		return 0
	}
	h := int64(img.Bounds().Dy())
	switch m := img.(type) {
	case *image.RGBA:
		return int64(m.Stride) * h
	case *image.NRGBA:
		return int64(m.Stride) * h
	case *image.RGBA64:
		return int64(m.Stride) * h
	case *image.NRGBA64:
		return int64(m.Stride) * h
	case *image.Gray:
		return int64(m.Stride) * h
	case *image.Gray16:
		return int64(m.Stride) * h
	case *image.Alpha:
		return int64(m.Stride) * h
	case *image.Alpha16:
		return int64(m.Stride) * h
	case *image.CMYK:
		return int64(m.Stride) * h
	case *image.Paletted:
		return int64(m.Stride) * h
	case *image.NYCbCrA:
		return ycbcrSize(&m.YCbCr) + int64(m.AStride)*h
	case *image.YCbCr:
		return ycbcrSize(m)
	}
	return 4 * int64(img.Bounds().Dx()) * h
}

func ycbcrSize(m *image.YCbCr) int64 {
	h := int64(m.Rect.Dy())
	ch := h
	switch m.SubsampleRatio {
	case image.YCbCrSubsampleRatio420, image.YCbCrSubsampleRatio440, image.YCbCrSubsampleRatio410:
		ch = (h + 1) / 2
	}
	return int64(m.YStride)*h + 2*int64(m.CStride)*ch
}
