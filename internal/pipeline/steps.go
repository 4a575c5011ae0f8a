package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nao1215/forestloss/internal/boundary"
	"github.com/nao1215/forestloss/internal/loss"
	"github.com/nao1215/forestloss/internal/model"
	"github.com/nao1215/forestloss/internal/render"
)

// Step names, in pipeline order.
const (
	StepBoundary = "boundary"
	StepLoss     = "loss"
	StepRender   = "render"
)

// DefaultImageSize is the pixel size of the square boundary and loss maps.
// The chart is rendered at DefaultImageSize x DefaultImageSize*3/4.
const DefaultImageSize = 512

// ErrNoRegion is returned by steps that need a farm boundary when the
// boundary step has not run.
var ErrNoRegion = errors.New("analysis has no farm boundary")

// BoundaryStep resolves the farm boundary from a boundary source.
type BoundaryStep struct {
	source boundary.Source
	logger *slog.Logger
}

// NewBoundaryStep creates a step that looks up farm boundaries in source.
func NewBoundaryStep(source boundary.Source, logger *slog.Logger) *BoundaryStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoundaryStep{source: source, logger: logger}
}

// Name returns the step name.
func (s *BoundaryStep) Name() string {
	return StepBoundary
}

// Do looks up the boundary and records it with its area.
func (s *BoundaryStep) Do(ctx context.Context, analysis *model.Analysis) error {
	region, err := s.source.Lookup(ctx, analysis.Cluster, analysis.FarmID)
	if err != nil {
		return err
	}
	analysis.SetRegion(region)

	s.logger.Debug("farm boundary resolved",
		"farm", analysis.FarmID,
		"polygons", len(region.Geometry()),
		"acres", analysis.RegionAcres,
	)
	return nil
}

// LossStep computes yearly forest loss within the farm boundary.
type LossStep struct {
	aggregator *loss.Aggregator
	years      []int
	logger     *slog.Logger
}

// NewLossStep creates a step that computes loss for years with aggregator.
func NewLossStep(aggregator *loss.Aggregator, years []int, logger *slog.Logger) *LossStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &LossStep{
		aggregator: aggregator,
		years:      append([]int(nil), years...),
		logger:     logger,
	}
}

// Name returns the step name.
func (s *LossStep) Name() string {
	return StepLoss
}

// Do computes the yearly loss and the derived summary.
func (s *LossStep) Do(ctx context.Context, analysis *model.Analysis) error {
	if analysis.Region == nil {
		return ErrNoRegion
	}

	result, err := s.aggregator.ComputeYearlyLoss(ctx, analysis.Region, s.years)
	if err != nil {
		return err
	}
	analysis.Dataset = s.aggregator.Dataset()
	analysis.SetResult(result)

	s.logger.Debug("yearly loss computed",
		"farm", analysis.FarmID,
		"years", len(result),
		"total_acres", analysis.Summary.TotalAcres,
	)
	return nil
}

// RenderStep produces the images used by the reports.
type RenderStep struct {
	size   int
	mapper loss.LossMapper
	mask   loss.VisualizationMask
	logger *slog.Logger
}

// RenderStepOption configures a RenderStep.
type RenderStepOption func(*RenderStep)

// WithImageSize sets the map size in pixels.
func WithImageSize(size int) RenderStepOption {
	return func(s *RenderStep) {
		if size > 0 {
			s.size = size
		}
	}
}

// WithLossMap enables the loss map, drawn by mapper for the loss events in mask.
func WithLossMap(mapper loss.LossMapper, mask loss.VisualizationMask) RenderStepOption {
	return func(s *RenderStep) {
		s.mapper = mapper
		s.mask = mask
	}
}

// WithRenderLogger sets a custom logger for the render step.
func WithRenderLogger(logger *slog.Logger) RenderStepOption {
	return func(s *RenderStep) {
		s.logger = logger
	}
}

// NewRenderStep creates a render step.
func NewRenderStep(opts ...RenderStepOption) *RenderStep {
	s := &RenderStep{
		size:   DefaultImageSize,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *RenderStep) Name() string {
	return StepRender
}

// Do renders the boundary map, the loss chart and, when enabled, the loss map.
//
// Design decision: A failed loss map is logged and left out of the report.
// The map is an illustration; the numbers in the chart and tables come from
// the loss step and are already complete.
func (s *RenderStep) Do(ctx context.Context, analysis *model.Analysis) error {
	if analysis.Region == nil {
		return ErrNoRegion
	}

	boundaryMap, err := render.BoundaryMap(analysis.Region, s.size, s.size)
	if err != nil {
		return fmt.Errorf("failed to render boundary map: %w", err)
	}
	chart, err := render.LossChart(analysis.Result, s.size, s.size*3/4)
	if err != nil {
		return fmt.Errorf("failed to render loss chart: %w", err)
	}
	analysis.Images.BoundaryMap = boundaryMap
	analysis.Images.Chart = chart

	if s.mapper == nil {
		return nil
	}

	lossMap, err := s.mapper.LossMap(ctx, s.mask, analysis.Region, s.size, s.size)
	if err != nil {
		s.logger.Warn("loss map unavailable",
			"farm", analysis.FarmID,
			"error", err,
		)
		return nil
	}
	analysis.Images.LossMap = lossMap
	return nil
}
