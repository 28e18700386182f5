package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Pahihq/ctfd-parser/internal/model"
)

// Step is one stage of a dump run.
// Steps are executed in sequence, with each step receiving the run report
// filled by the previous ones.
type Step interface {
	// Do executes the step. Non-fatal problems are recorded in the run
	// report and nil is returned.
	Do(ctx context.Context, run *model.RunReport) error

	// Name returns the step's name for logging purposes.
	Name() string
}

// Finalizer is implemented by steps that must still run after the run
// context was cancelled, so that partial results are kept.
type Finalizer interface {
	Finalizes() bool
}

// Required is implemented by steps whose failure ends the run even when
// the pipeline continues on error.
type Required interface {
	Required() bool
}

// Pipeline executes steps in order.
type Pipeline struct {
	steps  []Step
	logger *slog.Logger

	// continueOnError keeps executing steps after one fails.
	continueOnError bool
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithContinueOnError configures the pipeline to continue execution
// even when a step fails. Failed steps are logged and recorded in the
// report errors.
func WithContinueOnError(continueOnError bool) Option {
	return func(p *Pipeline) {
		p.continueOnError = continueOnError
	}
}

// New creates a new Pipeline with the given options.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		steps:  make([]Step, 0),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddStep appends a step to the pipeline.
func (p *Pipeline) AddStep(step Step) {
	p.steps = append(p.steps, step)
}

// AddSteps appends multiple steps to the pipeline.
func (p *Pipeline) AddSteps(steps ...Step) {
	p.steps = append(p.steps, steps...)
}

// Execute runs all steps in sequence.
//
// Once ctx is done, ordinary steps are skipped and the report is marked
// cancelled; Finalizer steps still run on a context detached from the
// cancellation. Execute then returns ctx.Err().
func (p *Pipeline) Execute(ctx context.Context, run *model.RunReport) error {
	for _, step := range p.steps {
		stepCtx := ctx
		if ctx.Err() != nil {
			if !run.Cancelled {
				p.logger.Warn("run cancelled", "step", step.Name(), "reason", ctx.Err())
				run.Cancelled = true
			}
			if !finalizes(step) {
				continue
			}
			stepCtx = context.WithoutCancel(ctx)
		}

		p.logger.Debug("executing step", "step", step.Name(), "run", run.ID)

		if err := step.Do(stepCtx, run); err != nil {
			p.logger.Error("step failed", "step", step.Name(), "error", err)
			run.AddError(fmt.Errorf("%s: %w", step.Name(), err))
			if !p.continueOnError || required(step) {
				return err
			}
		} else {
			p.logger.Debug("step completed", "step", step.Name())
		}

		run.PerformedSteps = append(run.PerformedSteps, step.Name())
	}

	if run.Cancelled {
		return ctx.Err()
	}
	return nil
}

// StepNames returns the names of all steps in execution order.
func (p *Pipeline) StepNames() []string {
	names := make([]string, len(p.steps))
	for i, step := range p.steps {
		names[i] = step.Name()
	}
	return names
}

func finalizes(step Step) bool {
	f, ok := step.(Finalizer)
	return ok && f.Finalizes()
}

func required(step Step) bool {
	r, ok := step.(Required)
	return ok && r.Required()
}
