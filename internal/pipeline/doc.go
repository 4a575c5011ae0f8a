// Package pipeline provides a framework for executing analysis steps in sequence.
//
// A farm analysis runs three steps: the boundary step resolves the farm
// polygon, the loss step computes deforested acres per year, and the render
// step draws the maps and the chart used by the reports. Each step receives
// the current model.Analysis and fills in its part.
//
// Design decision: We use a pipeline pattern instead of direct function calls
// so that every step gets the same error handling, logging and cancellation
// checks.
//
// The BatchProcessor runs the pipeline for several farms with concurrency
// control using errgroup.
package pipeline
