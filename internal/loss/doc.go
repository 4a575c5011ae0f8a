// Package loss computes deforested area per calendar year inside a farm
// boundary.
//
// The computation is a zonal sum over a global annual forest-loss raster.
// For every requested year Y the raster is masked to the pixels whose
// lossyear code equals Y-2000 and whose loss flag is set, each remaining
// pixel is weighted by its area in acres, and the weights are summed inside
// the region. The raster itself is never materialized locally: the sum is
// delegated to a Backend, which is either the Earth Engine REST service or
// an in-memory synthetic grid used in tests.
//
// # Error taxonomy
//
// Every failure returned by ComputeYearlyLoss matches exactly one of:
//
//   - ErrInvalidRegion: the region is empty or has zero area. No remote
//     call is made.
//   - ErrServiceUnavailable: the service could not be reached, rejected the
//     credentials, or a request timed out.
//   - ErrComputationFailed: the service evaluated the request and reported
//     an error, or returned a value that is not a finite non-negative area.
//
// A failure in any single year fails the whole computation; partial results
// are never returned.
package loss
