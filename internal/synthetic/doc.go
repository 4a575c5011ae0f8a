// Package synthetic provides an in-memory loss raster that implements the
// same backend contract as the Earth Engine service.
//
// A Grid is a regular longitude/latitude lattice whose cells carry a
// lossyear code and a loss flag, mirroring the two bands of the Hansen
// dataset. Reductions sum cell areas for cells whose center lies inside the
// region, so results are exact and reproducible. Grids back the tests of
// the aggregator, the pipeline and the CLI.
package synthetic
