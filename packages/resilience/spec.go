package resilience

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

type BackoffKind int

const (
	BackoffConstant BackoffKind = iota
	BackoffLinear
	BackoffExponential
)

func (k BackoffKind) String() string {
	switch k {
	case BackoffConstant:
		return "constant"
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	default:
		return fmt.Sprintf("backoff(%d)", int(k))
	}
}

func ParseBackoffKind(s string) (BackoffKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "constant":
		return BackoffConstant, nil
	case "linear":
		return BackoffLinear, nil
	case "exponential":
		return BackoffExponential, nil
	default:
		return BackoffConstant, fmt.Errorf("unknown backoff type %q", s)
	}
}

// Defaults of a Spec. Merge treats a field equal to its default as unset.
const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = BackoffConstant
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = time.Duration(0)
	DefaultJitter      = false
)

// Outcome is the result of one attempt.
type Outcome struct {
	Attempt  int
	Response *http.Response
	Err      error
}

// StatusCode returns the response status, or 0 when the attempt produced no response.
func (o Outcome) StatusCode() int {
	if o.Response == nil {
		return 0
	}
	return o.Response.StatusCode
}

type Predicate func(Outcome) bool

// DelayGenerator overrides the backoff schedule for one wait. Returning false
// falls back to the schedule.
type DelayGenerator func(attempt int, o Outcome) (time.Duration, bool)

type RetryHook func(ctx context.Context, o Outcome, delay time.Duration)

// Spec describes a retry policy. MaxAttempts counts retries after the first
// attempt, so a policy runs at most MaxAttempts+1 times.
type Spec struct {
	Name           string
	MaxAttempts    int
	Backoff        BackoffKind
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Jitter         bool
	DelayGenerator DelayGenerator
	ShouldRetry    Predicate
	OnRetry        RetryHook
}

func DefaultSpec() Spec {
	return Spec{
		MaxAttempts: DefaultMaxAttempts,
		Backoff:     DefaultBackoff,
		BaseDelay:   DefaultBaseDelay,
		MaxDelay:    DefaultMaxDelay,
		Jitter:      DefaultJitter,
	}
}

// Merge derives a new spec from base and override. A scalar field is taken
// from override only when it differs from its default, so an override that
// explicitly asks for the default value (for example MaxAttempts 3) leaves
// the base value in place. Retry predicates are combined with OR and both
// sides are always evaluated.
func Merge(base, override Spec) Spec {
	out := base
	if override.Name != "" {
		out.Name = override.Name
	}
	if override.MaxAttempts != DefaultMaxAttempts {
		out.MaxAttempts = override.MaxAttempts
	}
	if override.Backoff != DefaultBackoff {
		out.Backoff = override.Backoff
	}
	if override.BaseDelay != DefaultBaseDelay {
		out.BaseDelay = override.BaseDelay
	}
	if override.MaxDelay != DefaultMaxDelay {
		out.MaxDelay = override.MaxDelay
	}
	if override.Jitter != DefaultJitter {
		out.Jitter = override.Jitter
	}
	if override.DelayGenerator != nil {
		out.DelayGenerator = override.DelayGenerator
	}
	if override.OnRetry != nil {
		out.OnRetry = override.OnRetry
	}
	out.ShouldRetry = Or(base.ShouldRetry, override.ShouldRetry)
	return out
}

// Or combines predicates. Every predicate is evaluated even when an earlier
// one already asked for a retry.
func Or(preds ...Predicate) Predicate {
	var live []Predicate
	for _, p := range preds {
		if p != nil {
			live = append(live, p)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return func(o Outcome) bool {
		retry := false
		for _, p := range live {
			if p(o) {
				retry = true
			}
		}
		return retry
	}
}

// RetryOnStatus retries responses whose status is one of codes.
func RetryOnStatus(codes ...int) Predicate {
	set := statusSet(codes)
	return func(o Outcome) bool {
		return o.Response != nil && set[o.Response.StatusCode]
	}
}

// RetryUnlessStatus retries until a response with one of codes arrives.
// Attempts that failed without a response are retried as well.
func RetryUnlessStatus(codes ...int) Predicate {
	set := statusSet(codes)
	return func(o Outcome) bool {
		return o.Response == nil || !set[o.Response.StatusCode]
	}
}

func RetryOnTransportError(o Outcome) bool {
	return o.Err != nil
}

// RetryOnTransientFailure retries transport errors, 408, 429 and any 5xx.
func RetryOnTransientFailure(o Outcome) bool {
	if o.Err != nil {
		return true
	}
	if o.Response == nil {
		return false
	}
	code := o.Response.StatusCode
	return code == http.StatusRequestTimeout || code == http.StatusTooManyRequests || code >= 500
}

func statusSet(codes []int) map[int]bool {
	set := make(map[int]bool, len(codes))
	for _, c := range codes {
		set[c] = true
	}
	return set
}
