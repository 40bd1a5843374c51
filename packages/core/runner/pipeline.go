package runner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Status is the outcome of a pipeline run, usable as a process exit code.
type Status int

const (
	StatusSuccess   Status = 0
	StatusFailure   Status = 1
	StatusCancelled Status = 130
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Step is one runnable unit of a pipeline. Steps are compared by identity,
// so implementations are pointer types.
type Step interface {
	Name() string
	Run(ctx context.Context, rc *RunContext) error
}

// Conditional is implemented by steps that may be skipped. Steps without it
// always run.
type Conditional interface {
	ShouldRun(rc *RunContext) bool
}

// StepFailure records the error a step returned.
type StepFailure struct {
	Step  Step
	Index int
	Err   error
}

func (f StepFailure) Error() string {
	if f.Step == nil {
		return f.Err.Error()
	}
	return fmt.Sprintf("step %d (%s): %v", f.Index, f.Step.Name(), f.Err)
}

func (f StepFailure) Unwrap() error {
	return f.Err
}

var (
	ErrNoInsertionPoint = errors.New("no step is executing and no predecessor was given")
	ErrUnknownStep      = errors.New("step is not part of the pipeline")
	ErrInsertAhead      = errors.New("predecessor has not executed yet")
)

// Pipeline runs steps one at a time. Steps may be inserted while the
// pipeline is running; the list only ever grows.
type Pipeline struct {
	steps     []Step
	cursor    int
	executing bool
	faulted   bool
	failures  []StepFailure

	report    Step
	reportRan bool

	logger *zap.Logger
}

type PipelineOption func(*Pipeline)

func WithLogger(logger *zap.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithReportStep installs the terminal step. It is kept last and runs
// exactly once per pipeline, also when an earlier step faults.
func WithReportStep(step Step) PipelineOption {
	return func(p *Pipeline) {
		p.report = step
	}
}

func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cursor: -1,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.report != nil {
		p.steps = append(p.steps, p.report)
	}
	return p
}

// AddSteps appends steps, ahead of the report step if it has not run.
func (p *Pipeline) AddSteps(steps ...Step) {
	at := len(p.steps)
	if p.report != nil && !p.reportRan {
		if i := p.indexOf(p.report); i > p.cursor {
			at = i
		}
	}
	p.splice(at, steps)
}

// InsertSteps places steps immediately after the given predecessor, or after
// the executing step when after is nil. The predecessor must be the executing
// step or one that has already executed. Steps inserted behind the cursor
// are kept in order but do not run in the current pass.
func (p *Pipeline) InsertSteps(after Step, steps ...Step) error {
	var idx int
	switch {
	case after == nil && !p.executing:
		return ErrNoInsertionPoint
	case after == nil:
		idx = p.cursor
	default:
		idx = p.indexOf(after)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownStep, after.Name())
		}
		if idx > p.cursor {
			return fmt.Errorf("%w: %s", ErrInsertAhead, after.Name())
		}
	}
	p.splice(idx+1, steps)
	if idx < p.cursor {
		p.cursor += len(steps)
	}
	return nil
}

func (p *Pipeline) splice(at int, steps []Step) {
	if len(steps) == 0 {
		return
	}
	grown := make([]Step, 0, len(p.steps)+len(steps))
	grown = append(grown, p.steps[:at]...)
	grown = append(grown, steps...)
	grown = append(grown, p.steps[at:]...)
	p.steps = grown
}

func (p *Pipeline) indexOf(step Step) int {
	for i, s := range p.steps {
		if s == step {
			return i
		}
	}
	return -1
}

// Steps returns a copy of the current step list.
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

func (p *Pipeline) Failures() []StepFailure {
	out := make([]StepFailure, len(p.failures))
	copy(out, p.failures)
	return out
}

func (p *Pipeline) Faulted() bool {
	return p.faulted
}

// Run executes the remaining steps in order and stops at the first failure.
// The report step is then run if it has not run yet.
func (p *Pipeline) Run(ctx context.Context, rc *RunContext) Status {
	if rc == nil {
		rc = &RunContext{}
	}
	rc.pipeline = p

	for !p.faulted && p.cursor+1 < len(p.steps) {
		if ctx.Err() != nil {
			break
		}
		p.cursor++
		step := p.steps[p.cursor]

		if c, ok := step.(Conditional); ok && !c.ShouldRun(rc) {
			p.logger.Debug("skipping step", zap.Int("index", p.cursor), zap.String("step", step.Name()))
			continue
		}
		if step == p.report {
			p.reportRan = true
		}

		p.logger.Debug("running step", zap.Int("index", p.cursor), zap.String("step", step.Name()))
		p.executing = true
		err := runStep(ctx, step, rc)
		p.executing = false

		if err != nil {
			p.fail(step, p.cursor, err)
		}
	}

	p.finalize(ctx, rc)
	return p.status(ctx)
}

// runStep turns a panic inside a step into an error so the step is
// recorded as failed and the report still runs.
func runStep(ctx context.Context, step Step, rc *RunContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Run(ctx, rc)
}

func (p *Pipeline) fail(step Step, index int, err error) {
	p.faulted = true
	p.failures = append(p.failures, StepFailure{Step: step, Index: index, Err: err})
	p.logger.Error("step failed",
		zap.Int("index", index),
		zap.String("step", step.Name()),
		zap.Error(err))
}

func (p *Pipeline) finalize(ctx context.Context, rc *RunContext) {
	if p.report == nil || p.reportRan {
		return
	}
	p.reportRan = true
	idx := p.indexOf(p.report)
	p.logger.Debug("running report step during finalisation", zap.Int("index", idx))
	if err := runStep(context.WithoutCancel(ctx), p.report, rc); err != nil {
		p.fail(p.report, idx, err)
	}
}

func (p *Pipeline) status(ctx context.Context) Status {
	if ctx.Err() != nil {
		return StatusCancelled
	}
	for _, f := range p.failures {
		if errors.Is(f.Err, context.Canceled) {
			return StatusCancelled
		}
	}
	if p.faulted {
		return StatusFailure
	}
	return StatusSuccess
}
