package earthengine

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
)

// maxThumbnailBytes bounds the size of a downloaded loss map.
const maxThumbnailBytes = 32 << 20

// Backend evaluates loss reductions and loss maps on Earth Engine.
// It implements loss.Backend, loss.SessionEnsurer and loss.LossMapper.
type Backend struct {
	session *Session
	logger  *slog.Logger
}

// BackendOption configures a Backend.
type BackendOption func(*Backend)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		b.logger = logger
	}
}

// NewBackend creates a Backend that issues requests through session.
func NewBackend(session *Session, opts ...BackendOption) *Backend {
	b := &Backend{session: session}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// EnsureSession establishes the underlying session.
func (b *Backend) EnsureSession(ctx context.Context) error {
	return b.session.EnsureSession(ctx)
}

// ReduceSumOverRegion evaluates the zonal sum of expr over region with
// projects.value.compute. It returns nil when the result dictionary has no
// entry (or a null entry) for expr.StatKey.
func (b *Backend) ReduceSumOverRegion(ctx context.Context, expr loss.Expression, region *model.Region, scale, maxPixels float64) (*float64, error) {
	client, err := b.session.restClient(ctx)
	if err != nil {
		return nil, err
	}

	req := &computeValueRequest{
		Expression: reduceExpression(expr, region, scale, maxPixels),
	}
	var resp computeValueResponse
	if err := client.postJSON(ctx, "value.compute", b.session.Project()+"/value:compute", req, &resp); err != nil {
		return nil, err
	}

	return statFromResult(resp.Result, expr.StatKey)
}

// statFromResult reads key from a reduceRegion dictionary.
func statFromResult(result any, key string) (*float64, error) {
	if result == nil {
		return nil, nil
	}
	dict, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected result type %T", loss.ErrComputationFailed, result)
	}

	raw, ok := dict[key]
	if !ok || raw == nil {
		return nil, nil
	}
	v, ok := raw.(float64)
	if !ok {
		return nil, fmt.Errorf("%w: statistic %q has type %T", loss.ErrComputationFailed, key, raw)
	}
	if math.IsNaN(v) {
		return nil, fmt.Errorf("%w: statistic %q is NaN", loss.ErrComputationFailed, key)
	}
	return &v, nil
}

// LossMap renders mask clipped to region as a PNG via projects.thumbnails.
func (b *Backend) LossMap(ctx context.Context, mask loss.VisualizationMask, region *model.Region, width, height int) ([]byte, error) {
	if err := region.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", loss.ErrInvalidRegion, err)
	}
	client, err := b.session.restClient(ctx)
	if err != nil {
		return nil, err
	}

	req := &thumbnail{
		Expression: lossMapExpression(mask, region, width, height),
		FileFormat: "PNG",
	}
	var thumb thumbnail
	if err := client.postJSON(ctx, "thumbnails.create", b.session.Project()+"/thumbnails", req, &thumb); err != nil {
		return nil, err
	}
	if thumb.Name == "" {
		return nil, fmt.Errorf("%w: thumbnails.create returned no name", loss.ErrComputationFailed)
	}
	b.logger.Debug("thumbnail created", "name", thumb.Name)

	// The getPixels body is the image itself rather than JSON.
	return client.getRaw(ctx, "thumbnails.getPixels", thumb.Name+":getPixels", maxThumbnailBytes)
}
