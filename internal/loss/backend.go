package loss

import (
	"context"

	"github.com/nao1215/forestloss/internal/model"
)

// Backend evaluates zonal sums over the loss raster.
//
// ReduceSumOverRegion returns the sum of expr over region at the given scale
// (meters per pixel), touching at most maxPixels pixels. A nil value means the
// service reported no statistic for the expression. Errors should wrap
// ErrServiceUnavailable or ErrComputationFailed; unclassified errors are
// treated as computation failures.
type Backend interface {
	ReduceSumOverRegion(ctx context.Context, expr Expression, region *model.Region, scale, maxPixels float64) (*float64, error)
}

// SessionEnsurer is implemented by backends that need to establish a session
// before the first request. EnsureSession must be idempotent.
type SessionEnsurer interface {
	EnsureSession(ctx context.Context) error
}

// LossMapper is implemented by backends that can render the visualization
// mask clipped to a region as a PNG image.
type LossMapper interface {
	LossMap(ctx context.Context, mask VisualizationMask, region *model.Region, width, height int) ([]byte, error)
}
