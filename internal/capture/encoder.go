package capture

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"strings"
)

// Encoder turns a captured bitmap into a self-describing byte stream.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	MediaType() string
}

// PNGEncoder is the default, lossless transport encoding.
type PNGEncoder struct{}

func (PNGEncoder) Encode(w io.Writer, img image.Image) error { return png.Encode(w, img) }
func (PNGEncoder) MediaType() string                         { return "image/png" }

// JPEGEncoder trades fidelity for size.
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Encode(w io.Writer, img image.Image) error {
	q := e.Quality
	if q <= 0 || q > 100 {
		q = jpeg.DefaultQuality
	}
	return jpeg.Encode(w, img, &jpeg.Options{Quality: q})
}

func (JPEGEncoder) MediaType() string { return "image/jpeg" }

// EncoderFor resolves a config format name.
func EncoderFor(format string, quality int) (Encoder, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "png":
		return PNGEncoder{}, nil
	case "jpeg", "jpg":
		return JPEGEncoder{Quality: quality}, nil
	default:
		return nil, fmt.Errorf("unsupported capture format: %s (use 'png' or 'jpeg')", format)
	}
}
