package pipeline

import (
	"context"
	"log/slog"

	"github.com/nao1215/forestloss/internal/model"
)

// Step defines the interface that all pipeline steps must implement.
// Steps are executed in sequence, with each step receiving the analysis
// accumulated by previous steps.
//
// Design decision: We use an interface rather than function types so steps
// can carry their configuration (boundary source, aggregator, image size)
// and report a Name() for logging.
type Step interface {
	// Do executes the pipeline step.
	// It receives the context for cancellation, and the analysis to modify.
	// Returns an error if the step fails critically; non-critical problems
	// should be logged and return nil.
	Do(ctx context.Context, analysis *model.Analysis) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Pipeline orchestrates the execution of multiple steps.
// It maintains a list of steps and executes them in order.
type Pipeline struct {
	// steps contains the ordered list of steps to execute.
	steps []Step

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// continueOnError determines whether to continue executing steps
	// after one fails. If false, the pipeline stops on first error.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. The first error is still recorded in the
// analysis, and the analysis is not marked complete.
//
// Design decision: The default is to stop on error because every step
// depends on the previous one (no loss without a boundary).
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
// Steps should be added using AddStep after creation.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps: make([]Step, 0),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}

	return p
}

// AddStep appends a step to the pipeline.
// Steps are executed in the order they are added.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all pipeline steps in sequence.
// It respects context cancellation and logs each step's execution.
//
// Design decision: We check ctx.Done() before each step rather than
// during, because steps handle their own timeouts.
//
// The analysis is marked complete only when every step succeeded.
// Returns the first error encountered.
func (p *Pipeline) Execute(ctx context.Context, analysis *model.Analysis) error {
	var firstErr error
	for _, step := range p.steps {
		select {
		case <-ctx.Done():
			p.logger.Warn("pipeline cancelled",
				"step", step.Name(),
				"reason", ctx.Err(),
			)
			if firstErr == nil {
				analysis.Fail(ctx.Err())
				firstErr = ctx.Err()
			}
			return firstErr
		default:
		}

		p.logger.Info("executing step",
			"step", step.Name(),
			"cluster", analysis.Cluster,
			"farm", analysis.FarmID,
		)

		if err := step.Do(ctx, analysis); err != nil {
			p.logger.Error("step failed",
				"step", step.Name(),
				"cluster", analysis.Cluster,
				"farm", analysis.FarmID,
				"error", err,
			)

			if firstErr == nil {
				analysis.Fail(err)
				firstErr = err
			}
			if !p.continueOnError {
				return err
			}
			continue
		}

		p.logger.Debug("step completed",
			"step", step.Name(),
			"farm", analysis.FarmID,
		)
		analysis.Steps = append(analysis.Steps, step.Name())
	}

	if firstErr == nil {
		analysis.Complete()
	}
	return firstErr
}

// StepCount returns the number of steps in the pipeline.
func (p *Pipeline) StepCount() int {
	return len(p.steps)
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}
