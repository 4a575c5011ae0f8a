package loss

import "errors"

var (
	// ErrInvalidRegion is returned when the region is empty or degenerate.
	ErrInvalidRegion = errors.New("invalid region")

	// ErrServiceUnavailable is returned when the raster service cannot be
	// reached, refuses the session, or does not answer in time.
	ErrServiceUnavailable = errors.New("raster service unavailable")

	// ErrComputationFailed is returned when the raster service rejects or
	// fails to evaluate a reduction.
	ErrComputationFailed = errors.New("loss computation failed")

	// ErrInvalidYear is returned when a requested year is not a positive
	// calendar year.
	ErrInvalidYear = errors.New("invalid year")

	// ErrInvalidYearRange is returned when a visualization range starts
	// after it ends.
	ErrInvalidYearRange = errors.New("invalid year range")
)
