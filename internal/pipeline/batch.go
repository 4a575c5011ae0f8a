package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/nao1215/forestloss/internal/model"
	"golang.org/x/sync/errgroup"
)

// DefaultBatchConcurrency is the number of farms analyzed at once.
// Each farm already fans out one request per year, so this stays small.
const DefaultBatchConcurrency = 2

// BatchProcessor analyzes several farms of one cluster concurrently.
// It uses errgroup to manage goroutines and respect concurrency limits.
//
// Design decision: We use a separate BatchProcessor rather than adding batch
// functionality to Pipeline so the Pipeline stays focused on one farm.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each farm.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent analyses.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent analyses.
// Non-positive values keep the default.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
//
// The pipelineFactory function is called for each farm to create a fresh
// pipeline instance, so pipeline state doesn't leak between farms.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultBatchConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyzes multiple farms concurrently.
//
// The returned slice has one analysis per farm id, in input order. Farms
// that failed carry their error in the analysis. A farm skipped because the
// batch was cancelled is nil, and the error return is the context error.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, cluster string, farmIDs []string) ([]*model.Analysis, error) {
	results := make([]*model.Analysis, len(farmIDs))
	err := bp.ProcessBatchWithCallback(ctx, cluster, farmIDs, func(analysis *model.Analysis, index int) {
		results[index] = analysis
	})
	return results, err
}

// ProcessBatchWithCallback analyzes multiple farms and calls callback for
// each finished analysis. This is useful for streaming results.
//
// The callback receives the analysis and the index of the farm in farmIDs.
// It is called from the goroutine that ran the analysis, so it must be
// safe for concurrent use when it touches shared state.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	cluster string,
	farmIDs []string,
	callback func(analysis *model.Analysis, index int),
) error {
	bp.logger.Info("starting batch processing",
		"cluster", cluster,
		"total_farms", len(farmIDs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, farmID := range farmIDs {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			bp.logger.Info("analyzing farm",
				"farm", farmID,
				"index", i+1,
				"total", len(farmIDs),
			)

			analysis := model.NewAnalysis(cluster, farmID)
			if err := bp.pipelineFactory().Execute(ctx, analysis); err != nil {
				// Recorded in the analysis; other farms continue.
				bp.logger.Warn("analysis failed",
					"farm", farmID,
					"error", err,
				)
			} else {
				bp.logger.Info("analysis completed",
					"farm", farmID,
					"total_acres", analysis.Summary.TotalAcres,
				)
			}

			callback(analysis, i)
			return nil
		})
	}

	err := g.Wait()
	bp.logger.Info("batch processing complete",
		"total_farms", len(farmIDs),
		"elapsed", time.Since(startTime),
	)
	return err
}
