package loss

import (
	"errors"
	"testing"
)

// TestNewYearExpression tests the per-year aggregation expression.
func TestNewYearExpression(t *testing.T) {
	t.Parallel()

	e := NewYearExpression("", 2022)
	if e.Dataset != DefaultDataset {
		t.Errorf("expected default dataset, got %s", e.Dataset)
	}
	if e.YearCode != 22 {
		t.Errorf("expected code 22, got %d", e.YearCode)
	}
	if e.Year() != 2022 {
		t.Errorf("expected year 2022, got %d", e.Year())
	}
	if e.StatKey != "lossyear" {
		t.Errorf("expected stat key lossyear, got %s", e.StatKey)
	}
	if e.AreaFactor != 0.000247 {
		t.Errorf("unexpected area factor %f", e.AreaFactor)
	}
}

// TestNewVisualizationMask tests the visualization range.
func TestNewVisualizationMask(t *testing.T) {
	t.Parallel()

	t.Run("valid range", func(t *testing.T) {
		t.Parallel()

		m, err := NewVisualizationMask("", 2020, 2023)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tests := []struct {
			code int
			lost bool
			want bool
		}{
			{19, true, false},
			{20, true, true},
			{23, true, true},
			{24, true, false},
			{21, false, false},
		}
		for _, tt := range tests {
			if got := m.Includes(tt.code, tt.lost); got != tt.want {
				t.Errorf("Includes(%d, %v) = %v, want %v", tt.code, tt.lost, got, tt.want)
			}
		}
	})

	t.Run("reversed range", func(t *testing.T) {
		t.Parallel()

		if _, err := NewVisualizationMask("", 2023, 2020); !errors.Is(err, ErrInvalidYearRange) {
			t.Errorf("expected ErrInvalidYearRange, got %v", err)
		}
	})

	t.Run("non-positive year", func(t *testing.T) {
		t.Parallel()

		if _, err := NewVisualizationMask("", 0, 2020); !errors.Is(err, ErrInvalidYear) {
			t.Errorf("expected ErrInvalidYear, got %v", err)
		}
	})
}
