// Package imaging re-encodes arbitrary input images into bounded-size JPEGs.
//
// Every photo goes through Compress before it enters the blob store, so the
// store only ever holds lossy JPEG bytes no wider than the configured maximum.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif" // registers GIF decoding
	"image/jpeg"
	_ "image/png" // registers PNG decoding
	"math"

	"golang.org/x/image/draw"
)

const (
	// DefaultMaxWidth bounds the output width in pixels.
	DefaultMaxWidth = 1280
	// DefaultQuality is the JPEG encoding quality (1-100).
	DefaultQuality = 82
)

// MimeJPEG is the mime type of every compressed photo.
const MimeJPEG = "image/jpeg"

// Options control Compress. Zero values select the defaults.
type Options struct {
	MaxWidth int
	Quality  int
}

// Result is a compressed photo.
type Result struct {
	Data   []byte
	Mime   string
	Width  int
	Height int
}

// Compress decodes data, downscales it to at most opts.MaxWidth preserving
// aspect ratio (never upscaling), and re-encodes it as JPEG.
//
// A decode failure is returned as an error and the caller must not create a
// blob record for it.
func Compress(data []byte, opts Options) (*Result, error) {
	if opts.MaxWidth <= 0 {
		opts.MaxWidth = DefaultMaxWidth
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	scale := math.Min(1, float64(opts.MaxWidth)/float64(w))
	nw := int(math.Round(float64(w) * scale))
	nh := int(math.Round(float64(h) * scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	out := src
	if nw != w || nh != h {
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		out = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return &Result{Data: buf.Bytes(), Mime: MimeJPEG, Width: nw, Height: nh}, nil
}
