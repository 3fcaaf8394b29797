package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// encodePNG renders a solid-color PNG of the given size.
func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255}) //nolint:gosec // G115: bounded by % 256
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode compressed image: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestCompress_DownscalesWideImages(t *testing.T) {
	src := encodePNG(t, 2000, 1000)

	res, err := Compress(src, Options{MaxWidth: 1280, Quality: 82})
	if err != nil {
		t.Fatalf("failed to compress: %v", err)
	}
	if res.Mime != MimeJPEG {
		t.Errorf("expected %q, got %q", MimeJPEG, res.Mime)
	}
	w, h := decodeSize(t, res.Data)
	if w != 1280 {
		t.Errorf("expected width 1280, got %d", w)
	}
	if h != 640 {
		t.Errorf("expected height 640 (aspect preserved), got %d", h)
	}
}

func TestCompress_NeverUpscales(t *testing.T) {
	src := encodePNG(t, 320, 240)

	res, err := Compress(src, Options{})
	if err != nil {
		t.Fatalf("failed to compress: %v", err)
	}
	w, h := decodeSize(t, res.Data)
	if w != 320 || h != 240 {
		t.Errorf("small image must keep its size, got %dx%d", w, h)
	}
}

func TestCompress_WidthNeverExceedsMax(t *testing.T) {
	for _, srcW := range []int{100, 1280, 1281, 3000} {
		src := encodePNG(t, srcW, 100)
		res, err := Compress(src, Options{MaxWidth: 1280})
		if err != nil {
			t.Fatalf("failed to compress %d-wide image: %v", srcW, err)
		}
		w, _ := decodeSize(t, res.Data)
		if w > 1280 {
			t.Errorf("source width %d: output width %d exceeds max", srcW, w)
		}
	}
}

func TestCompress_DecodeFailure(t *testing.T) {
	if _, err := Compress([]byte("definitely not an image"), Options{}); err == nil {
		t.Fatal("expected an error for undecodable input")
	}
}
