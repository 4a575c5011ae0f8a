package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/nao1215/forestloss/internal/model"
	"github.com/paulmach/orb"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	return img
}

// TestBoundaryMap tests the boundary outline image.
func TestBoundaryMap(t *testing.T) {
	t.Parallel()

	region, err := model.NewRegion(orb.Bound{Min: orb.Point{75.9, 13.0}, Max: orb.Point{75.91, 13.01}}.ToPolygon())
	if err != nil {
		t.Fatal(err)
	}

	t.Run("draws a red outline on a transparent background", func(t *testing.T) {
		t.Parallel()

		data, err := BoundaryMap(region, 200, 100)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		img := decodePNG(t, data)
		if b := img.Bounds(); b.Dx() != 200 || b.Dy() != 100 {
			t.Errorf("unexpected size %v", b)
		}
		if _, _, _, a := img.At(0, 0).RGBA(); a != 0 {
			t.Error("expected transparent corner")
		}
		if _, _, _, a := img.At(100, 50).RGBA(); a != 0 {
			t.Error("expected transparent interior")
		}

		red := 0
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				r, g, _, a := img.At(x, y).RGBA()
				if a > 0 && r > g {
					red++
				}
			}
		}
		if red == 0 {
			t.Error("expected red outline pixels")
		}
	})

	t.Run("invalid size", func(t *testing.T) {
		t.Parallel()

		if _, err := BoundaryMap(region, 0, 100); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("expected ErrInvalidSize, got %v", err)
		}
	})

	t.Run("invalid region", func(t *testing.T) {
		t.Parallel()

		if _, err := BoundaryMap(&model.Region{}, 100, 100); !errors.Is(err, model.ErrEmptyRegion) {
			t.Errorf("expected ErrEmptyRegion, got %v", err)
		}
	})
}

// TestLossChart tests the yearly bar chart.
func TestLossChart(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		result model.YearlyLossResult
	}{
		{"typical", model.YearlyLossResult{{2020, 0}, {2021, 1.5}, {2022, 10}, {2023, 0.25}}},
		{"all zero", model.YearlyLossResult{{2020, 0}, {2021, 0}}},
		{"empty", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := LossChart(tt.result, 480, 320)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			img := decodePNG(t, data)
			if b := img.Bounds(); b.Dx() != 480 || b.Dy() != 320 {
				t.Errorf("unexpected size %v", b)
			}
		})
	}

	t.Run("bar height follows the value", func(t *testing.T) {
		t.Parallel()

		data, err := LossChart(model.YearlyLossResult{{2021, 0}, {2022, 10}}, 400, 300)
		if err != nil {
			t.Fatal(err)
		}
		img := decodePNG(t, data)

		// The second bar reaches the top of the plot; the first has no bar.
		slot := float64(400-chartMarginLeft-chartMarginRight) / 2
		y := 300 - chartMarginBottom - 20
		first := int(chartMarginLeft + slot/2)
		second := int(chartMarginLeft + slot*1.5)
		if !isBarColor(img.At(second, y)) {
			t.Error("expected a bar for 2022")
		}
		if isBarColor(img.At(first, y)) {
			t.Error("expected no bar for 2021")
		}
	})

	t.Run("invalid size", func(t *testing.T) {
		t.Parallel()

		if _, err := LossChart(nil, 10, -1); !errors.Is(err, ErrInvalidSize) {
			t.Errorf("expected ErrInvalidSize, got %v", err)
		}
	})
}

func isBarColor(c color.Color) bool {
	r, g, b, _ := c.RGBA()
	return r > 0xa000 && g < 0x4000 && b < 0x4000
}

// TestFitPNG tests image scaling.
func TestFitPNG(t *testing.T) {
	t.Parallel()

	src := image.NewRGBA(image.Rect(0, 0, 400, 100))
	for x := 0; x < 400; x++ {
		for y := 0; y < 100; y++ {
			src.Set(x, y, color.RGBA{0, 128, 0, 255})
		}
	}

	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, src, nil); err != nil {
		t.Fatal(err)
	}

	t.Run("scales down keeping aspect ratio", func(t *testing.T) {
		t.Parallel()

		out, err := FitPNG(jpg.Bytes(), 200, 200)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b := decodePNG(t, out).Bounds(); b.Dx() != 200 || b.Dy() != 50 {
			t.Errorf("expected 200x50, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("small images keep their size", func(t *testing.T) {
		t.Parallel()

		out, err := FitPNG(jpg.Bytes(), 1000, 1000)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b := decodePNG(t, out).Bounds(); b.Dx() != 400 || b.Dy() != 100 {
			t.Errorf("expected 400x100, got %dx%d", b.Dx(), b.Dy())
		}
	})

	t.Run("not an image", func(t *testing.T) {
		t.Parallel()

		if _, err := FitPNG([]byte("logo"), 10, 10); err == nil {
			t.Error("expected an error")
		}
	})
}
