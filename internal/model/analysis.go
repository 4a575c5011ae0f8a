package model

import (
	"time"

	"github.com/google/uuid"
)

// Analysis is the result of analyzing one farm.
// It is filled in step by step by the analysis pipeline and then handed to
// report writers and the history database.
type Analysis struct {
	// ID uniquely identifies this analysis run.
	ID string `json:"id"`

	// Cluster is the cluster (growing region) the farm belongs to.
	Cluster string `json:"cluster"`

	// FarmID identifies the farm within its cluster.
	FarmID string `json:"farm_id"`

	// StartedAt is when the analysis began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the last pipeline step finished.
	// It is zero if the analysis did not complete.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	// Dataset is the identifier of the loss raster that was queried.
	Dataset string `json:"dataset,omitempty"`

	// Region is the farm boundary returned by the boundary source.
	Region *Region `json:"region,omitempty"`

	// RegionAcres is the geodesic area of Region.
	RegionAcres float64 `json:"region_acres"`

	// Result holds the deforested acres per requested year.
	Result YearlyLossResult `json:"result"`

	// Summary holds statistics derived from Result.
	Summary Summary `json:"summary"`

	// Images holds rendered artifacts. They are not serialized.
	Images Images `json:"-"`

	// Steps lists the pipeline steps that completed.
	Steps []string `json:"steps,omitempty"`

	// Error is the failure that stopped the analysis, if any.
	Error error `json:"-"`

	// ErrorMessage is the string form of Error for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// Images holds the binary artifacts produced by the presentation layer.
// Each is an encoded PNG, or nil when the artifact is unavailable.
type Images struct {
	// BoundaryMap shows the farm boundary outline.
	BoundaryMap []byte

	// LossMap shows forest loss pixels clipped to the farm boundary.
	LossMap []byte

	// Chart is the yearly loss bar chart.
	Chart []byte
}

// Summary holds statistics derived from a YearlyLossResult.
type Summary struct {
	// TotalAcres is the sum of all yearly losses.
	TotalAcres float64 `json:"total_acres"`

	// MeanAcres is the mean yearly loss.
	MeanAcres float64 `json:"mean_acres"`

	// PeakYear is the year with the largest loss, or 0 when there was none.
	PeakYear int `json:"peak_year,omitempty"`

	// PeakAcres is the loss in PeakYear.
	PeakAcres float64 `json:"peak_acres"`

	// TrendAcresPerYear is the least-squares slope of loss over years.
	TrendAcresPerYear float64 `json:"trend_acres_per_year"`

	// LossShare is TotalAcres divided by the farm area (0 when unknown).
	LossShare float64 `json:"loss_share"`

	// Risk classifies LossShare.
	Risk RiskLevel `json:"risk"`

	// RiskText is the human-readable form of Risk.
	RiskText string `json:"risk_text"`
}

// NewAnalysis creates an Analysis for the given farm with a fresh ID.
func NewAnalysis(cluster, farmID string) *Analysis {
	return &Analysis{
		ID:        uuid.NewString(),
		Cluster:   cluster,
		FarmID:    farmID,
		StartedAt: time.Now(),
	}
}

// SetRegion records the farm boundary and its area.
func (a *Analysis) SetRegion(region *Region) {
	a.Region = region
	a.RegionAcres = region.Acres()
}

// SetResult records the yearly loss and recomputes the summary.
func (a *Analysis) SetResult(result YearlyLossResult) {
	a.Result = result
	a.Summary = Summarize(result, a.RegionAcres)
}

// Fail records the error that stopped the analysis.
func (a *Analysis) Fail(err error) {
	a.Error = err
	if err != nil {
		a.ErrorMessage = err.Error()
	}
}

// Complete marks the analysis as finished.
func (a *Analysis) Complete() {
	a.CompletedAt = time.Now()
}

// Succeeded reports whether the analysis completed without error.
func (a *Analysis) Succeeded() bool {
	return a.ErrorMessage == "" && !a.CompletedAt.IsZero()
}

// Summarize computes a Summary for result on a farm of farmAcres.
func Summarize(result YearlyLossResult, farmAcres float64) Summary {
	s := Summary{
		TotalAcres:        result.Total(),
		MeanAcres:         result.Mean(),
		TrendAcresPerYear: result.Trend(),
	}
	if peak, ok := result.Peak(); ok && peak.Acres > 0 {
		s.PeakYear = peak.Year
		s.PeakAcres = peak.Acres
	}
	if farmAcres > 0 {
		s.LossShare = s.TotalAcres / farmAcres
	}
	s.Risk = ClassifyRisk(s.TotalAcres, farmAcres)
	s.RiskText = s.Risk.String()
	return s
}
