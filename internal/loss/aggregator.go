package loss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/nao1215/forestloss/internal/model"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRequestTimeout bounds a single per-year reduction.
	DefaultRequestTimeout = 2 * time.Minute

	// DefaultConcurrency is the number of reductions in flight at once.
	DefaultConcurrency = 4
)

// Aggregator computes YearlyLossResults against a Backend.
// It holds no per-request state and is safe for concurrent use.
type Aggregator struct {
	backend     Backend
	dataset     string
	scale       float64
	maxPixels   float64
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithDataset sets the loss raster asset id.
func WithDataset(dataset string) Option {
	return func(a *Aggregator) {
		if dataset != "" {
			a.dataset = dataset
		}
	}
}

// WithScale sets the reduction scale in meters.
func WithScale(scale float64) Option {
	return func(a *Aggregator) {
		if scale > 0 {
			a.scale = scale
		}
	}
}

// WithMaxPixels sets the pixel cap of each reduction.
func WithMaxPixels(maxPixels float64) Option {
	return func(a *Aggregator) {
		if maxPixels > 0 {
			a.maxPixels = maxPixels
		}
	}
}

// WithRequestTimeout sets the timeout applied to each per-year reduction.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(a *Aggregator) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// WithConcurrency sets how many per-year reductions may run at once.
func WithConcurrency(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator creates an Aggregator that queries backend.
func NewAggregator(backend Backend, opts ...Option) *Aggregator {
	a := &Aggregator{
		backend:     backend,
		dataset:     DefaultDataset,
		scale:       DefaultScale,
		maxPixels:   DefaultMaxPixels,
		timeout:     DefaultRequestTimeout,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Dataset returns the configured loss raster asset id.
func (a *Aggregator) Dataset() string {
	return a.dataset
}

// ComputeYearlyLoss returns the deforested acres inside region for each of
// years, in the order the years were given.
//
// The region is validated before any remote call. Years are independent and
// are reduced concurrently; the first failure cancels the remaining requests
// and is returned alone. A year for which the service has no statistic is
// reported as 0 acres.
func (a *Aggregator) ComputeYearlyLoss(ctx context.Context, region *model.Region, years []int) (model.YearlyLossResult, error) {
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegion, err)
	}
	for _, year := range years {
		if year <= 0 {
			return nil, fmt.Errorf("%w: %d", ErrInvalidYear, year)
		}
	}
	if len(years) == 0 {
		return model.YearlyLossResult{}, nil
	}

	if s, ok := a.backend.(SessionEnsurer); ok {
		if err := s.EnsureSession(ctx); err != nil {
			return nil, classify(err)
		}
	}

	result := make(model.YearlyLossResult, len(years))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	for i, year := range years {
		g.Go(func() error {
			acres, err := a.reduceYear(gctx, region, year)
			if err != nil {
				return err
			}
			// Each goroutine writes only its own index.
			result[i] = model.YearLoss{Year: year, Acres: acres}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

// reduceYear runs the reduction for a single year under the request timeout.
func (a *Aggregator) reduceYear(ctx context.Context, region *model.Region, year int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, classify(err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	expr := NewYearExpression(a.dataset, year)
	start := time.Now()
	value, err := a.backend.ReduceSumOverRegion(reqCtx, expr, region, a.scale, a.maxPixels)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("%w: year %d: request timed out after %s", ErrServiceUnavailable, year, a.timeout)
		}
		a.logger.Debug("reduction failed", "year", year, "error", err)
		return 0, classify(err)
	}

	acres, err := statValue(value)
	if err != nil {
		return 0, fmt.Errorf("year %d: %w", year, err)
	}

	a.logger.Debug("reduction completed",
		"year", year,
		"acres", acres,
		"elapsed", time.Since(start),
	)
	return acres, nil
}

// statValue applies the absent-statistic rule and rejects values that are not
// a finite non-negative area.
func statValue(v *float64) (float64, error) {
	if v == nil {
		return 0, nil
	}
	switch {
	case math.IsNaN(*v), math.IsInf(*v, 0):
		return 0, fmt.Errorf("%w: non-finite sum %v", ErrComputationFailed, *v)
	case *v < 0:
		return 0, fmt.Errorf("%w: negative sum %v", ErrComputationFailed, *v)
	}
	return *v, nil
}

// classify maps an arbitrary backend error onto the error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, ErrComputationFailed),
		errors.Is(err, ErrInvalidRegion):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrComputationFailed, err)
	}
}
