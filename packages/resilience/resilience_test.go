package resilience

import (
	"context"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func response(code int) *http.Response {
	return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader("body"))}
}

// sequence returns an operation that replies with codes in order, repeating
// the last one, and counts the attempts.
func sequence(calls *int, codes ...int) Operation {
	return func(ctx context.Context) (*http.Response, error) {
		i := *calls
		*calls++
		if i >= len(codes) {
			i = len(codes) - 1
		}
		return response(codes[i]), nil
	}
}

func fastRegistry(t *testing.T) *Registry {
	t.Helper()
	reg := NewRegistry()
	fast := DefaultStrategySpec()
	fast.BaseDelay = time.Millisecond
	require.NoError(t, reg.Register(fast))
	return reg
}

func funcPtr(f interface{}) uintptr {
	if f == nil || reflect.ValueOf(f).IsNil() {
		return 0
	}
	return reflect.ValueOf(f).Pointer()
}

func TestMerge_DefaultOverrideIsIdentity(t *testing.T) {
	base := Spec{
		Name:        "aggressive",
		MaxAttempts: 7,
		Backoff:     BackoffExponential,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    time.Second,
		Jitter:      true,
		ShouldRetry: RetryOnTransientFailure,
	}

	got := Merge(base, DefaultSpec())
	assert.Equal(t, base.Name, got.Name)
	assert.Equal(t, base.MaxAttempts, got.MaxAttempts)
	assert.Equal(t, base.Backoff, got.Backoff)
	assert.Equal(t, base.BaseDelay, got.BaseDelay)
	assert.Equal(t, base.MaxDelay, got.MaxDelay)
	assert.Equal(t, base.Jitter, got.Jitter)
	assert.Equal(t, funcPtr(base.ShouldRetry), funcPtr(got.ShouldRetry))
}

func TestMerge_TakesNonDefaultFields(t *testing.T) {
	base := DefaultStrategySpec()
	override := DefaultSpec()
	override.MaxAttempts = 5
	override.Backoff = BackoffLinear
	override.MaxDelay = 10 * time.Second

	got := Merge(base, override)
	assert.Equal(t, StrategyDefault, got.Name)
	assert.Equal(t, 5, got.MaxAttempts)
	assert.Equal(t, BackoffLinear, got.Backoff)
	assert.Equal(t, DefaultBaseDelay, got.BaseDelay)
	assert.Equal(t, 10*time.Second, got.MaxDelay)

	again := Merge(base, override)
	assert.Equal(t, got.MaxAttempts, again.MaxAttempts)
	assert.Equal(t, got.Backoff, again.Backoff)
}

func TestMerge_DefaultValuedOverrideKeepsBase(t *testing.T) {
	base := DefaultSpec()
	base.MaxAttempts = 10
	override := DefaultSpec()
	override.MaxAttempts = DefaultMaxAttempts

	assert.Equal(t, 10, Merge(base, override).MaxAttempts)
}

func TestOr_EvaluatesBothSides(t *testing.T) {
	var left, right int
	p := Or(
		func(Outcome) bool { left++; return true },
		func(Outcome) bool { right++; return false },
	)
	assert.True(t, p(Outcome{}))
	assert.Equal(t, 1, left)
	assert.Equal(t, 1, right)
	assert.Nil(t, Or(nil, nil))
}

func TestPolicy_AllowListStopsOnAcceptedStatus(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Spec{
		Name:        "on-500",
		MaxAttempts: 5,
		BaseDelay:   time.Millisecond,
		ShouldRetry: RetryOnStatus(500),
	}))
	policy, err := NewResolver(reg).Resolve(Request{Strategy: "on-500", UntilStatus: []int{200}})
	require.NoError(t, err)

	calls := 0
	resp, attempts, err := policy.ExecuteCounted(context.Background(), sequence(&calls, 500, 502, 200))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestPolicy_ExhaustsRetries(t *testing.T) {
	for _, n := range []int{0, 1, 4} {
		spec := Spec{Name: "x", MaxAttempts: n, ShouldRetry: RetryOnStatus(500)}
		calls := 0
		resp, attempts, err := newPolicy(spec, false).ExecuteCounted(context.Background(), sequence(&calls, 500))
		require.NoError(t, err)
		assert.Equal(t, n+1, attempts)
		assert.Equal(t, n+1, calls)
		assert.Equal(t, 500, resp.StatusCode)
	}
}

func TestPolicy_RetriesTransportErrors(t *testing.T) {
	reg := fastRegistry(t)
	policy, err := NewResolver(reg).Resolve(Request{Strategy: StrategyDefault})
	require.NoError(t, err)

	boom := errors.New("connection refused")
	calls := 0
	_, attempts, err := policy.ExecuteCounted(context.Background(), func(ctx context.Context) (*http.Response, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, DefaultMaxAttempts+1, attempts)
}

func TestPolicy_OnRetryHookAndDelayGenerator(t *testing.T) {
	var delays []time.Duration
	spec := Spec{
		Name:        "hooked",
		MaxAttempts: 2,
		BaseDelay:   time.Hour,
		ShouldRetry: RetryOnStatus(503),
		DelayGenerator: func(attempt int, o Outcome) (time.Duration, bool) {
			return time.Duration(attempt) * time.Millisecond, true
		},
		OnRetry: func(ctx context.Context, o Outcome, delay time.Duration) {
			delays = append(delays, delay)
		},
	}
	calls := 0
	_, attempts, err := newPolicy(spec, false).ExecuteCounted(context.Background(), sequence(&calls, 503))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, 2 * time.Millisecond}, delays)
}

func TestPolicy_CancelledWhileWaiting(t *testing.T) {
	spec := Spec{Name: "slow", MaxAttempts: 3, BaseDelay: time.Hour, ShouldRetry: RetryOnStatus(500)}
	ctx, cancel := context.WithCancel(context.Background())
	spec.OnRetry = func(context.Context, Outcome, time.Duration) { cancel() }

	calls := 0
	resp, attempts, err := newPolicy(spec, false).ExecuteCounted(ctx, sequence(&calls, 500))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, resp)
	assert.Equal(t, 1, attempts)
}

func TestSchedule(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want []time.Duration
	}{
		{"constant", Spec{Backoff: BackoffConstant, BaseDelay: time.Second}, []time.Duration{time.Second, time.Second, time.Second}},
		{"linear", Spec{Backoff: BackoffLinear, BaseDelay: time.Second}, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
		{"exponential", Spec{Backoff: BackoffExponential, BaseDelay: time.Second}, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}},
		{"capped", Spec{Backoff: BackoffExponential, BaseDelay: time.Second, MaxDelay: 3 * time.Second}, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSchedule(tt.spec)
			for _, want := range tt.want {
				assert.Equal(t, want, s.NextBackOff())
			}
		})
	}
}

func TestSchedule_JitterStaysInRange(t *testing.T) {
	s := newSchedule(Spec{Backoff: BackoffConstant, BaseDelay: time.Second, Jitter: true, MaxDelay: 1200 * time.Millisecond})
	for i := 0; i < 50; i++ {
		d := s.NextBackOff()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Equal(t, []string{StrategyDefault, StrategyNone}, reg.Names())

	_, err := reg.Lookup("missing")
	var unreg *UnregisteredError
	require.ErrorAs(t, err, &unreg)
	assert.Equal(t, "missing", unreg.Name)
	assert.Equal(t, `retry strategy "missing" is not registered`, err.Error())

	assert.Error(t, reg.Register(Spec{}))
	require.NoError(t, reg.Register(Spec{Name: StrategyDefault, MaxAttempts: 9}))
	s, err := reg.Lookup(StrategyDefault)
	require.NoError(t, err)
	assert.Equal(t, 9, s.MaxAttempts)
}

func TestResolver_CachesUnalteredPolicies(t *testing.T) {
	r := NewResolver(fastRegistry(t))

	a, err := r.Resolve(Request{Strategy: StrategyDefault})
	require.NoError(t, err)
	b, err := r.Resolve(Request{Strategy: StrategyDefault})
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.False(t, a.Altered())

	override := DefaultSpec()
	override.MaxAttempts = 1
	c, err := r.Resolve(Request{Strategy: StrategyDefault, Overrides: &override})
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.True(t, c.Altered())
	assert.Equal(t, 1, c.Spec().MaxAttempts)

	d, err := r.Resolve(Request{Strategy: StrategyDefault})
	require.NoError(t, err)
	assert.Same(t, a, d)
}

func TestResolver_NoStrategy(t *testing.T) {
	r := NewResolver(fastRegistry(t))

	p, err := r.Resolve(Request{})
	require.NoError(t, err)
	assert.Equal(t, StrategyNone, p.Name())
	assert.Equal(t, 0, p.Spec().MaxAttempts)

	_, err = r.Resolve(Request{Strategy: "nope"})
	var unreg *UnregisteredError
	assert.ErrorAs(t, err, &unreg)
}

func TestResolver_SyntheticAllowListPolicy(t *testing.T) {
	reg := fastRegistry(t)
	r := NewResolver(reg)

	p, err := r.Resolve(Request{UntilStatus: []int{204, 200}})
	require.NoError(t, err)
	assert.Equal(t, "until-status:200,204", p.Name())
	assert.Contains(t, reg.Names(), "until-status:200,204")

	calls := 0
	resp, attempts, err := p.ExecuteCounted(context.Background(), sequence(&calls, 500, 500, 200))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestResolver_FallbackStrategyOption(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Spec{Name: "patient", MaxAttempts: 6, BaseDelay: time.Millisecond}))
	r := NewResolver(reg, WithFallbackStrategy("patient"))

	p, err := r.Resolve(Request{UntilStatus: []int{200}})
	require.NoError(t, err)
	assert.Equal(t, 6, p.Spec().MaxAttempts)
}

func TestParseBackoffKind(t *testing.T) {
	k, err := ParseBackoffKind("Exponential")
	require.NoError(t, err)
	assert.Equal(t, BackoffExponential, k)
	assert.Equal(t, "linear", BackoffLinear.String())
	_, err = ParseBackoffKind("fibonacci")
	assert.Error(t, err)
}
