// Package pipeline runs the four statement stages over a date range: unlock
// raw PDFs, extract statement documents, build the yearly tables and unify
// them.
package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-pipeline/internal/canonical"
	"github.com/dvloznov/statement-pipeline/internal/extraction"
	"github.com/dvloznov/statement-pipeline/internal/unlock"
)

// Step is a single step of a per-document pipeline.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *State) error
}

// State holds what the steps hand to each other for one document.
type State struct {
	URI string
	Key string

	Data       []byte
	Unlocked   unlock.Result
	Text       string
	Extraction extraction.Result
	Bundle     canonical.Bundle

	// Output is the URI of the artifact the pipeline wrote, if any.
	Output string
}

// Pipeline runs steps in order and stops at the first failure.
type Pipeline struct {
	steps []Step
}

// New creates a pipeline with the given steps.
func New(steps ...Step) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially.
func (p *Pipeline) Execute(ctx context.Context, state *State) error {
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
	}
	return nil
}
