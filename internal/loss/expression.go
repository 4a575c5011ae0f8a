package loss

import (
	"fmt"

	"github.com/nao1215/forestloss/internal/model"
)

const (
	// DefaultDataset is the Hansen Global Forest Change release queried when
	// no dataset is configured.
	DefaultDataset = "UMD/hansen/global_forest_change_2024_v1_12"

	// LossYearBand holds the two-digit year offset of the loss event,
	// 0 meaning no loss.
	LossYearBand = "lossyear"

	// LossBand holds the binary loss flag.
	LossBand = "loss"

	// DefaultScale is the native resolution of the dataset in meters.
	DefaultScale = 30.0

	// DefaultMaxPixels caps the number of pixels a single reduction may touch.
	DefaultMaxPixels = 1e13

	// yearBase is the year that lossyear codes are offset from.
	yearBase = 2000
)

// YearCode converts a calendar year to a lossyear code.
// Years before 2001 produce codes the dataset never contains.
func YearCode(year int) int {
	return year - yearBase
}

// Expression describes the per-year aggregation mask:
//
//	(LossYearBand == YearCode) AND LossBand, weighted by pixelArea * AreaFactor
//
// summed over a region. The sum is read back from the result dictionary at
// StatKey.
type Expression struct {
	// Dataset is the asset id of the loss raster.
	Dataset string

	// LossYearBand and LossBand name the bands read from Dataset.
	LossYearBand string
	LossBand     string

	// YearCode is the lossyear value selected by the mask.
	YearCode int

	// AreaFactor converts pixel area in square meters to the result unit.
	AreaFactor float64

	// StatKey is the key under which the reducer reports the sum.
	StatKey string
}

// NewYearExpression returns the aggregation expression for one calendar year.
func NewYearExpression(dataset string, year int) Expression {
	if dataset == "" {
		dataset = DefaultDataset
	}
	return Expression{
		Dataset:      dataset,
		LossYearBand: LossYearBand,
		LossBand:     LossBand,
		YearCode:     YearCode(year),
		AreaFactor:   model.AcresPerSquareMeter,
		StatKey:      LossYearBand,
	}
}

// Year returns the calendar year selected by the expression.
func (e Expression) Year() int {
	return e.YearCode + yearBase
}

// VisualizationMask selects the pixels drawn on the loss map: the loss band
// masked to lossyear codes within [FromCode, ToCode]. It is independent of
// the aggregation mask; the map range need not match the analyzed years.
type VisualizationMask struct {
	Dataset      string
	LossYearBand string
	LossBand     string
	FromCode     int
	ToCode       int
}

// NewVisualizationMask returns the mask for the inclusive range fromYear..toYear.
func NewVisualizationMask(dataset string, fromYear, toYear int) (VisualizationMask, error) {
	if fromYear <= 0 || toYear <= 0 {
		return VisualizationMask{}, fmt.Errorf("%w: %d-%d", ErrInvalidYear, fromYear, toYear)
	}
	if fromYear > toYear {
		return VisualizationMask{}, fmt.Errorf("%w: %d is after %d", ErrInvalidYearRange, fromYear, toYear)
	}
	if dataset == "" {
		dataset = DefaultDataset
	}
	return VisualizationMask{
		Dataset:      dataset,
		LossYearBand: LossYearBand,
		LossBand:     LossBand,
		FromCode:     YearCode(fromYear),
		ToCode:       YearCode(toYear),
	}, nil
}

// Includes reports whether a pixel with the given lossyear code and loss flag
// is drawn.
func (m VisualizationMask) Includes(code int, lost bool) bool {
	return lost && code >= m.FromCode && code <= m.ToCode
}
