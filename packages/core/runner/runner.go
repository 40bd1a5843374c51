package runner

import (
	"context"

	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/core/env"
	"github.com/abdul-hamid-achik/hitflow/packages/history"
	"github.com/abdul-hamid-achik/hitflow/packages/http"
	"github.com/abdul-hamid-achik/hitflow/packages/resilience"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Runner struct {
	config *Config
}

// Config wires the collaborators of a run. Nil collaborators get defaults.
type Config struct {
	Client    *http.Client
	Variables *env.Resolver
	Policies  *resilience.Resolver
	Auth      *auth.Registry
	History   *history.Store
	Reporter  Reporter
	Logger    *zap.Logger
	Bail      bool
}

func NewRunner(cfg *Config) *Runner {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Client == nil {
		cfg.Client = http.NewClient()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Variables == nil {
		cfg.Variables = env.NewResolver(env.WithLogger(cfg.Logger))
	}
	if cfg.Policies == nil {
		cfg.Policies = resilience.NewResolver(resilience.NewRegistry(), resilience.WithLogger(cfg.Logger))
	}
	if cfg.Auth == nil {
		cfg.Auth = auth.NewRegistry()
	}
	return &Runner{config: cfg}
}

// Run executes files in order as one pipeline. Every file is a test case:
// its calls can refer to earlier exchanges of the same file only.
func (r *Runner) Run(ctx context.Context, files ...string) (*Summary, Status) {
	cfg := r.config
	summary := NewSummary(uuid.NewString())
	rc := &RunContext{
		Client:    cfg.Client,
		Variables: cfg.Variables,
		Policies:  cfg.Policies,
		Auth:      cfg.Auth,
		History:   cfg.History,
		Logger:    cfg.Logger,
		Summary:   summary,
		Bail:      cfg.Bail,
	}

	p := NewPipeline(WithLogger(cfg.Logger), WithReportStep(&ReportStep{Reporter: cfg.Reporter}))
	for _, file := range files {
		p.AddSteps(&BeginTestCaseStep{File: file}, &ReadFileStep{Path: file})
	}

	cfg.Logger.Info("starting run", zap.String("run", summary.RunID), zap.Strings("files", files))
	status := p.Run(ctx, rc)
	if status == StatusSuccess && !summary.Success() {
		status = StatusFailure
	}
	cfg.Logger.Info("run finished",
		zap.String("run", summary.RunID),
		zap.Stringer("status", status),
		zap.Int("passed", summary.Passed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, status
}
