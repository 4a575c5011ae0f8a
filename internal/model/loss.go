package model

import (
	"gonum.org/v1/gonum/stat"
)

// YearLoss is the deforested area attributed to one calendar year.
type YearLoss struct {
	// Year is the four-digit calendar year.
	Year int `json:"year"`

	// Acres is the deforested area within the region for Year.
	// It is never negative and never NaN.
	Acres float64 `json:"acres"`
}

// YearlyLossResult is an ordered sequence of per-year losses.
// It covers exactly the requested years, in the order they were requested.
type YearlyLossResult []YearLoss

// Years returns the years of the result in order.
func (r YearlyLossResult) Years() []int {
	years := make([]int, len(r))
	for i, yl := range r {
		years[i] = yl.Year
	}
	return years
}

// Acres returns the per-year areas in order.
func (r YearlyLossResult) Acres() []float64 {
	acres := make([]float64, len(r))
	for i, yl := range r {
		acres[i] = yl.Acres
	}
	return acres
}

// Total returns the sum of all yearly losses.
func (r YearlyLossResult) Total() float64 {
	var total float64
	for _, yl := range r {
		total += yl.Acres
	}
	return total
}

// Peak returns the entry with the largest loss. The first entry wins ties.
// ok is false for an empty result.
func (r YearlyLossResult) Peak() (peak YearLoss, ok bool) {
	for i, yl := range r {
		if i == 0 || yl.Acres > peak.Acres {
			peak = yl
		}
	}
	return peak, len(r) > 0
}

// Lookup returns the loss recorded for year.
func (r YearlyLossResult) Lookup(year int) (float64, bool) {
	for _, yl := range r {
		if yl.Year == year {
			return yl.Acres, true
		}
	}
	return 0, false
}

// Trend returns the least-squares slope of loss over years in acres per year.
// Fewer than two distinct years have no trend and return 0.
func (r YearlyLossResult) Trend() float64 {
	if len(r) < 2 {
		return 0
	}
	xs := make([]float64, len(r))
	distinct := false
	for i, yl := range r {
		xs[i] = float64(yl.Year)
		if xs[i] != xs[0] {
			distinct = true
		}
	}
	if !distinct {
		return 0
	}
	_, slope := stat.LinearRegression(xs, r.Acres(), nil, false)
	return slope
}

// Mean returns the mean yearly loss, or 0 for an empty result.
func (r YearlyLossResult) Mean() float64 {
	if len(r) == 0 {
		return 0
	}
	return stat.Mean(r.Acres(), nil)
}
