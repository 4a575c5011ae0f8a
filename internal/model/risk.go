package model

// RiskLevel classifies how much of a farm was deforested during the
// analyzed years. Levels are ordered so they can be compared directly.
type RiskLevel int

const (
	// RiskNone indicates no detected loss within the farm boundary.
	RiskNone RiskLevel = iota

	// RiskLow indicates loss below 1% of the farm area.
	RiskLow

	// RiskMedium indicates loss between 1% and 5% of the farm area.
	RiskMedium

	// RiskHigh indicates loss of 5% of the farm area or more.
	RiskHigh
)

// Share thresholds (fraction of farm area) for each risk level.
const (
	mediumRiskShare = 0.01
	highRiskShare   = 0.05
)

// String returns a human-readable representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "NONE"
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// Description returns a one-sentence explanation of the risk level.
func (r RiskLevel) Description() string {
	switch r {
	case RiskNone:
		return "No forest loss was detected inside the farm boundary."
	case RiskLow:
		return "Minor forest loss was detected inside the farm boundary."
	case RiskMedium:
		return "Noticeable forest loss was detected; field verification is recommended."
	case RiskHigh:
		return "Significant forest loss was detected; the farm requires review."
	default:
		return ""
	}
}

// ClassifyRisk maps a lost area and a farm area to a RiskLevel.
// A non-positive farm area with any loss is treated as high risk.
func ClassifyRisk(lossAcres, farmAcres float64) RiskLevel {
	if lossAcres <= 0 {
		return RiskNone
	}
	if farmAcres <= 0 {
		return RiskHigh
	}
	share := lossAcres / farmAcres
	switch {
	case share >= highRiskShare:
		return RiskHigh
	case share >= mediumRiskShare:
		return RiskMedium
	default:
		return RiskLow
	}
}
