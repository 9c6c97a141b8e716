package imaging

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	_ "golang.org/x/image/webp" // Register WebP format decoder
)

// Decoder turns encoded image bytes into a Bitmap.
type Decoder interface {
	Decode(ctx context.Context, data []byte) (*Bitmap, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(ctx context.Context, data []byte) (*Bitmap, error)

func (f DecoderFunc) Decode(ctx context.Context, data []byte) (*Bitmap, error) {
	return f(ctx, data)
}

// StdDecoder decodes JPEG, PNG, GIF and WebP through the image package's
// format registry.
type StdDecoder struct {
	// NormalizeRGBA converts every decoded image to *image.RGBA so that
	// sampling and size accounting work on a single pixel layout.
	NormalizeRGBA bool

	// MaxPixels bounds width*height read from the image header before any
	// pixel data is allocated. Zero means DefaultMaxPixels.
	MaxPixels int64
}

// DefaultMaxPixels admits scans up to about 10000x6000.
const DefaultMaxPixels = 60_000_000

// NewStdDecoder returns a decoder that keeps the codec's native pixel layout.
func NewStdDecoder() *StdDecoder { return &StdDecoder{} }

func (d *StdDecoder) Decode(ctx context.Context, data []byte) (*Bitmap, error) {
	if err := ctx.Err(); err != nil {
		return nil, New(KindDecode, "decode", err)
	}
	if len(data) == 0 {
		return nil, New(KindDecode, "decode", ErrEmptyData)
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, New(KindDecode, "decode", err)
	}
	limit := d.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > limit {
		return nil, New(KindDecode, "decode", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, limit))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, New(KindDecode, "decode", err)
	}

	if d.NormalizeRGBA {
		if _, ok := img.(*image.RGBA); !ok {
			b := img.Bounds()
			rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
			draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
			img = rgba
		}
	}

	return NewBitmap(img, format), nil
}
