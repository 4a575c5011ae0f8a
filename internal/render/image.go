package render

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // logo files may be JPEG
	"image/png"

	"golang.org/x/image/draw"
)

// FitPNG decodes a PNG or JPEG image, scales it down to fit within
// maxWidth x maxHeight keeping its aspect ratio, and re-encodes it as PNG.
// Images that already fit are only re-encoded.
func FitPNG(data []byte, maxWidth, maxHeight int) ([]byte, error) {
	if err := checkSize(maxWidth, maxHeight); err != nil {
		return nil, err
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxWidth || h > maxHeight {
		ratio := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
		w = max(int(float64(w)*ratio), 1)
		h = max(int(float64(h)*ratio), 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
