package render

import (
	"errors"
	"fmt"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// ErrInvalidSize is returned when an image dimension is not positive.
var ErrInvalidSize = errors.New("invalid image size")

var (
	fontOnce   sync.Once
	parsedFont *truetype.Font
	fontErr    error
)

// fontFace returns a Go Regular face of the given point size.
func fontFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		parsedFont, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", fontErr)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}

func checkSize(width, height int) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	return nil
}
