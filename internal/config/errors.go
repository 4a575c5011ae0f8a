package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoCluster is returned when no cluster is given.
	ErrNoCluster = errors.New("no cluster specified: use --cluster")

	// ErrNoFarm is returned when no farm id is given.
	ErrNoFarm = errors.New("no farm specified: provide one or more farm ids")

	// ErrNoYears is returned when the year list is empty.
	ErrNoYears = errors.New("no years specified")

	// ErrInvalidYear is returned when a year is not a four-digit calendar year.
	ErrInvalidYear = errors.New("invalid year: must be a four-digit calendar year")

	// ErrNoProject is returned when no Google Cloud project is configured.
	ErrNoProject = errors.New("no Google Cloud project: use --project or set defaults.project in .forestloss")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidConcurrency is returned when the concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidBatchSize is returned when the farm batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidScale is returned when the reduction scale is not positive.
	ErrInvalidScale = errors.New("invalid scale: must be positive")

	// ErrInvalidMaxPixels is returned when the pixel cap is not positive.
	ErrInvalidMaxPixels = errors.New("invalid max pixels: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified. Only one output format can be used at a time.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidMapRange is returned when the loss map year range is empty
	// or not made of positive years.
	ErrInvalidMapRange = errors.New("invalid map range: --map-from must not be after --map-to")
)
