package runner

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/assertions"
	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/core/env"
	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/abdul-hamid-achik/hitflow/packages/history"
	hfhttp "github.com/abdul-hamid-achik/hitflow/packages/http"
	"github.com/abdul-hamid-achik/hitflow/packages/resilience"
	"go.uber.org/zap"
)

// RunContext is the state shared by the steps of one pipeline run.
type RunContext struct {
	pipeline *Pipeline

	Client    *hfhttp.Client
	Variables *env.Resolver
	Policies  *resilience.Resolver
	Auth      *auth.Registry
	History   *history.Store
	Logger    *zap.Logger
	Summary   *Summary

	// Bail skips the remaining calls once one has failed.
	Bail       bool
	callFailed bool
}

// Pipeline returns the pipeline currently running this context.
func (rc *RunContext) Pipeline() *Pipeline {
	return rc.pipeline
}

func (rc *RunContext) logger() *zap.Logger {
	if rc.Logger == nil {
		return zap.NewNop()
	}
	return rc.Logger
}

func (rc *RunContext) bailed() bool {
	return rc.Bail && rc.callFailed
}

// BeginTestCaseStep starts a new test case: test-case variables and recorded
// exchanges of the previous file are dropped.
type BeginTestCaseStep struct {
	File string
}

func (s *BeginTestCaseStep) Name() string { return "begin-test-case " + s.File }

func (s *BeginTestCaseStep) Run(_ context.Context, rc *RunContext) error {
	if rc.Variables != nil {
		rc.Variables.BeginTestCase()
	}
	if rc.Summary != nil {
		rc.Summary.Files = append(rc.Summary.Files, s.File)
	}
	return nil
}

// ReadFileStep reads a request file and schedules a call chain for every
// block right after itself.
type ReadFileStep struct {
	Path string
}

func (s *ReadFileStep) Name() string { return "read-file " + s.Path }

func (s *ReadFileStep) Run(_ context.Context, rc *RunContext) error {
	content, err := os.ReadFile(s.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.Path, err)
	}

	blocks := parser.SplitBlocks(string(content))
	steps := make([]Step, 0, len(blocks)*5)
	for i, raw := range blocks {
		c := &call{file: s.Path, baseDir: filepath.Dir(s.Path), index: i, raw: raw}
		steps = append(steps,
			&ParseStep{call: c},
			&ResolvePolicyStep{call: c},
			&ExecuteStep{call: c},
			&RecordStep{call: c},
			&DisposeStep{call: c},
		)
	}
	rc.logger().Debug("scheduled calls", zap.String("file", s.Path), zap.Int("calls", len(blocks)))
	return rc.Pipeline().InsertSteps(s, steps...)
}

// call carries one request block through its chain of steps.
type call struct {
	file    string
	baseDir string
	index   int
	raw     parser.RawBlock

	block    *parser.Block
	policy   *resilience.Policy
	request  *http.Request
	response *hfhttp.Response
	attempts int
	executed bool
}

func (c *call) label() string {
	if c.block != nil {
		return c.block.DisplayName()
	}
	if c.raw.Title != "" {
		return c.raw.Title
	}
	return fmt.Sprintf("block %d", c.index+1)
}

// ParseStep resolves variables line by line and parses the block.
type ParseStep struct {
	call *call
}

func (s *ParseStep) Name() string { return "parse " + s.call.label() }

func (s *ParseStep) ShouldRun(rc *RunContext) bool {
	return !rc.bailed()
}

func (s *ParseStep) Run(_ context.Context, rc *RunContext) error {
	opts := []parser.Option{parser.WithFilename(s.call.file)}
	if rc.Client != nil {
		opts = append(opts, parser.WithDefaultHeaders(rc.Client.DefaultHeaders()))
	}
	if rc.Variables != nil {
		opts = append(opts, parser.WithLineTransform(rc.Variables.ResolveLine))
	}
	block, err := parser.ParseBlock(s.call.raw, opts...)
	if err != nil {
		return err
	}
	s.call.block = block
	return nil
}

// ResolvePolicyStep turns the retry directives of the block into a policy.
type ResolvePolicyStep struct {
	call *call
}

func (s *ResolvePolicyStep) Name() string { return "resolve-policy " + s.call.label() }

func (s *ResolvePolicyStep) ShouldRun(rc *RunContext) bool {
	return !rc.bailed()
}

func (s *ResolvePolicyStep) Run(_ context.Context, rc *RunContext) error {
	d := s.call.block.Directives
	overrides, err := overrideSpec(d.RetryOverrides)
	if err != nil {
		return fmt.Errorf("%s: %w", s.call.label(), err)
	}
	policies := rc.Policies
	if policies == nil {
		policies = resilience.NewResolver(resilience.NewRegistry())
	}
	policy, err := policies.Resolve(resilience.Request{
		Strategy:    d.RetryStrategy,
		Overrides:   overrides,
		UntilStatus: d.RetryUntilStatus,
	})
	if err != nil {
		return fmt.Errorf("%s: %w", s.call.label(), err)
	}
	s.call.policy = policy
	return nil
}

// overrideSpec starts from the defaults so that fields the block does not
// set are left alone by resilience.Merge.
func overrideSpec(o *parser.RetryOverrides) (*resilience.Spec, error) {
	if o == nil || o.IsEmpty() {
		return nil, nil
	}
	spec := resilience.DefaultSpec()
	if o.MaxAttempts != nil {
		spec.MaxAttempts = *o.MaxAttempts
	}
	if o.Backoff != "" {
		kind, err := resilience.ParseBackoffKind(o.Backoff)
		if err != nil {
			return nil, err
		}
		spec.Backoff = kind
	}
	if o.BaseDelay != nil {
		spec.BaseDelay = *o.BaseDelay
	}
	if o.MaxDelay != nil {
		spec.MaxDelay = *o.MaxDelay
	}
	if o.Jitter != nil {
		spec.Jitter = *o.Jitter
	}
	return &spec, nil
}

// ExecuteStep authenticates the request and sends it under the resolved
// policy. Exhausted retries and transport errors fail the step.
type ExecuteStep struct {
	call *call
}

func (s *ExecuteStep) Name() string { return "execute " + s.call.label() }

func (s *ExecuteStep) ShouldRun(rc *RunContext) bool {
	return !rc.bailed()
}

func (s *ExecuteStep) Run(ctx context.Context, rc *RunContext) error {
	c := s.call
	if rc.Client == nil {
		rc.Client = hfhttp.NewClient()
	}
	req, err := hfhttp.FromEnvelope(c.block.Envelope, c.baseDir).Build(ctx)
	if err != nil {
		return s.failed(ctx, rc, fmt.Errorf("%s: %w", c.label(), err))
	}
	if name := c.block.Directives.AuthProvider; name != "" {
		if err := s.authenticate(ctx, rc, name, req); err != nil {
			return s.failed(ctx, rc, fmt.Errorf("%s: %w", c.label(), err))
		}
	}
	c.request = req
	c.executed = true

	logger := rc.logger().With(zap.String("call", c.label()), zap.String("policy", c.policy.Name()))
	start := time.Now()
	resp, attempts, err := c.policy.ExecuteCounted(ctx, func(ctx context.Context) (*http.Response, error) {
		attempt := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			attempt.Body = body
		}
		return rc.Client.Send(ctx, attempt)
	})
	c.attempts = attempts
	if err != nil {
		logger.Warn("call failed", zap.Int("attempts", attempts), zap.Error(err))
		return s.failed(ctx, rc, fmt.Errorf("%s: after %d attempt(s): %w", c.label(), attempts, err))
	}

	response, err := hfhttp.ReadResponse(resp, time.Since(start))
	if err != nil {
		return s.failed(ctx, rc, fmt.Errorf("%s: reading response: %w", c.label(), err))
	}
	response.Attempts = attempts
	c.response = response
	logger.Debug("call completed",
		zap.Int("status", response.StatusCode),
		zap.Int("attempts", attempts),
		zap.Duration("duration", response.Duration))
	return nil
}

func (s *ExecuteStep) authenticate(ctx context.Context, rc *RunContext, name string, req *http.Request) error {
	if rc.Auth == nil {
		return fmt.Errorf("%w %q", auth.ErrUnknownProvider, name)
	}
	provider, err := rc.Auth.Lookup(name)
	if err != nil {
		return err
	}
	return provider.Apply(ctx, req)
}

// failed records the call as failed before the step error stops the run, so
// the report still lists it.
func (s *ExecuteStep) failed(ctx context.Context, rc *RunContext, err error) error {
	rc.callFailed = true
	result := s.call.result()
	result.Error = err
	rc.Summary.add(result)
	rc.recordHistory(context.WithoutCancel(ctx), result)
	return err
}

// RecordStep stores the exchange for later variable queries, fills the
// block's @capture variables and evaluates the scheduled assertions.
type RecordStep struct {
	call *call
}

func (s *RecordStep) Name() string { return "record " + s.call.label() }

func (s *RecordStep) ShouldRun(rc *RunContext) bool {
	return !rc.bailed() && s.call.response != nil
}

func (s *RecordStep) Run(ctx context.Context, rc *RunContext) error {
	c := s.call
	if rc.Variables != nil {
		recorded := &http.Response{
			StatusCode: c.response.StatusCode,
			Status:     c.response.Status,
			Header:     c.response.Headers,
			Body:       io.NopCloser(bytes.NewReader(c.response.Body)),
		}
		if err := rc.Variables.Record(c.block.Name, c.request, recorded); err != nil {
			return err
		}
		for _, capture := range c.block.Captures {
			if err := rc.Variables.Capture(capture.Variable, capture.Query); err != nil {
				return fmt.Errorf("%s:%d: %w", c.file, capture.Line, err)
			}
		}
	}

	result := c.result()
	if asserts := c.block.Directives.Assertions; len(asserts) > 0 {
		result.Assertions = assertions.NewEvaluator(c.response, assertions.WithBaseDir(c.baseDir)).EvaluateAll(asserts)
		result.Passed = assertions.Passed(result.Assertions)
	} else {
		result.Passed = c.response.IsSuccess()
	}
	if !result.Passed {
		rc.callFailed = true
	}
	rc.Summary.add(result)
	rc.recordHistory(ctx, result)
	return nil
}

// DisposeStep releases the per-call state. A call that never ran is
// reported as skipped.
type DisposeStep struct {
	call *call
}

func (s *DisposeStep) Name() string { return "dispose " + s.call.label() }

func (s *DisposeStep) Run(_ context.Context, rc *RunContext) error {
	c := s.call
	if !c.executed {
		result := c.result()
		result.Skipped = true
		result.SkipReason = "bail after failure"
		rc.Summary.add(result)
	}
	c.request = nil
	c.response = nil
	c.policy = nil
	return nil
}

func (c *call) result() *CallResult {
	r := &CallResult{
		File:     c.file,
		Name:     c.label(),
		Line:     c.raw.Line,
		Attempts: c.attempts,
	}
	if c.block != nil {
		r.Line = c.block.Line
		r.Method = c.block.Envelope.Method()
		r.URL = c.block.Envelope.URI()
	}
	if c.policy != nil {
		r.Policy = c.policy.Name()
	}
	if c.request != nil {
		r.URL = c.request.URL.String()
	}
	if c.response != nil {
		r.StatusCode = c.response.StatusCode
		r.Duration = c.response.Duration
	}
	return r
}

func (rc *RunContext) recordHistory(ctx context.Context, r *CallResult) {
	if rc.History == nil || rc.Summary == nil {
		return
	}
	entry := history.Entry{
		RunID:    rc.Summary.RunID,
		File:     r.File,
		Name:     r.Name,
		Method:   r.Method,
		URL:      r.URL,
		Status:   r.StatusCode,
		Attempts: r.Attempts,
		Duration: r.Duration,
		Passed:   r.Passed,
	}
	if r.Error != nil {
		entry.Error = r.Error.Error()
	}
	if err := rc.History.Record(ctx, entry); err != nil {
		rc.logger().Warn("failed to write history", zap.Error(err))
	}
}

// Reporter renders a finished summary.
type Reporter interface {
	Report(s *Summary) error
}

// ReportStep closes the summary and hands it to the reporter.
type ReportStep struct {
	Reporter Reporter
}

func (s *ReportStep) Name() string { return "report" }

func (s *ReportStep) Run(_ context.Context, rc *RunContext) error {
	if rc.Summary == nil {
		return nil
	}
	rc.Summary.finish(rc.Pipeline().Failures())
	if s.Reporter == nil {
		return nil
	}
	return s.Reporter.Report(rc.Summary)
}
