package resilience

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Request selects a policy for one call.
type Request struct {
	Strategy    string
	Overrides   *Spec
	UntilStatus []int
}

func (r Request) altered() bool {
	return r.Overrides != nil || len(r.UntilStatus) > 0
}

var nopPolicy = newPolicy(NoneSpec(), false)

// Resolver turns a Request into a compiled Policy. Unaltered resolutions are
// cached by strategy name and returned as the same *Policy on later calls.
type Resolver struct {
	registry *Registry
	fallback string
	logger   *zap.Logger

	mu    sync.Mutex
	cache map[string]*Policy
}

type ResolverOption func(*Resolver)

// WithFallbackStrategy names the strategy used when a call carries overrides
// or a status allow-list but no strategy of its own.
func WithFallbackStrategy(name string) ResolverOption {
	return func(r *Resolver) {
		r.fallback = name
	}
}

func WithLogger(logger *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(registry *Registry, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		registry: registry,
		fallback: StrategyDefault,
		logger:   zap.NewNop(),
		cache:    make(map[string]*Policy),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Registry() *Registry {
	return r.registry
}

func (r *Resolver) Resolve(req Request) (*Policy, error) {
	if req.Strategy == "" && !req.altered() {
		return nopPolicy, nil
	}
	if !req.altered() {
		return r.cached(req.Strategy)
	}

	baseName := req.Strategy
	if baseName == "" {
		baseName = r.fallback
	}
	spec, err := r.registry.Lookup(baseName)
	if err != nil {
		return nil, err
	}
	if req.Overrides != nil {
		override := *req.Overrides
		override.Name = ""
		spec = Merge(spec, override)
	}
	if len(req.UntilStatus) > 0 {
		spec.ShouldRetry = Or(spec.ShouldRetry, RetryUnlessStatus(req.UntilStatus...))
		if req.Strategy == "" {
			spec.Name = UntilStatusName(req.UntilStatus)
			if req.Overrides == nil {
				if err := r.registry.Register(spec); err != nil {
					return nil, err
				}
			}
		}
	}

	r.logger.Debug("resolved altered retry policy",
		zap.String("base", baseName),
		zap.String("name", spec.Name),
		zap.Int("maxAttempts", spec.MaxAttempts),
		zap.Stringer("backoff", spec.Backoff),
		zap.Ints("untilStatus", req.UntilStatus))
	return newPolicy(spec, true), nil
}

func (r *Resolver) cached(name string) (*Policy, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.cache[name]; ok {
		return p, nil
	}
	spec, err := r.registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	p := newPolicy(spec, false)
	r.cache[name] = p
	r.logger.Debug("compiled retry policy", zap.String("name", name))
	return p, nil
}

// UntilStatusName derives the registry name of an allow-list policy,
// for example "until-status:200,204".
func UntilStatusName(codes []int) string {
	sorted := append([]int(nil), codes...)
	sort.Ints(sorted)
	parts := make([]string, len(sorted))
	for i, c := range sorted {
		parts[i] = strconv.Itoa(c)
	}
	return "until-status:" + strings.Join(parts, ",")
}
