// Package model defines the core data structures used throughout forestloss.
//
// This package contains the following main types:
//   - Region: A farm boundary (polygon or multipolygon in WGS84 lon/lat)
//   - YearLoss / YearlyLossResult: Deforested acres per requested year
//   - Summary / RiskLevel: Derived statistics used by reports
//   - Analysis: The result of analyzing one farm, handed to report writers
//
// Models live in their own package because the loss, render, report, database
// and pipeline packages all exchange them.
//
// The models are serializable to JSON for report output and history storage.
package model
