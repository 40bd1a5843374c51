package resilience

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Operation performs one attempt of a call.
type Operation func(ctx context.Context) (*http.Response, error)

// Policy is a compiled Spec. A Policy is safe to reuse across calls; every
// Execute starts a fresh backoff schedule.
type Policy struct {
	spec    Spec
	altered bool
}

func newPolicy(s Spec, altered bool) *Policy {
	if s.MaxAttempts < 0 {
		s.MaxAttempts = 0
	}
	return &Policy{spec: s, altered: altered}
}

func (p *Policy) Name() string {
	return p.spec.Name
}

func (p *Policy) Spec() Spec {
	return p.spec
}

// Altered reports whether the policy was derived from a registered strategy
// through overrides or a status allow-list.
func (p *Policy) Altered() bool {
	return p.altered
}

func (p *Policy) Execute(ctx context.Context, op Operation) (*http.Response, error) {
	resp, _, err := p.ExecuteCounted(ctx, op)
	return resp, err
}

// ExecuteCounted runs op until it is accepted, the retry budget is spent or
// ctx is cancelled, and returns the last outcome with the number of attempts.
// Responses of rejected attempts are drained and closed.
func (p *Policy) ExecuteCounted(ctx context.Context, op Operation) (*http.Response, int, error) {
	schedule := newSchedule(p.spec)
	attempt := 0
	for {
		attempt++
		resp, err := op(ctx)
		o := Outcome{Attempt: attempt, Response: resp, Err: err}

		if attempt > p.spec.MaxAttempts || p.spec.ShouldRetry == nil || !p.spec.ShouldRetry(o) {
			return resp, attempt, err
		}
		if ctx.Err() != nil {
			return resp, attempt, err
		}

		delay := schedule.NextBackOff()
		if p.spec.DelayGenerator != nil {
			if d, ok := p.spec.DelayGenerator(attempt, o); ok {
				delay = d
			}
		}
		if delay == backoff.Stop {
			return resp, attempt, err
		}
		if p.spec.OnRetry != nil {
			p.spec.OnRetry(ctx, o, delay)
		}
		discard(resp)

		if err := wait(ctx, delay); err != nil {
			return nil, attempt, err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func discard(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
