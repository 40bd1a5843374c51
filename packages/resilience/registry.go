package resilience

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

const (
	StrategyNone    = "none"
	StrategyDefault = "default"
)

// UnregisteredError is returned when a named strategy or provider is unknown.
type UnregisteredError struct {
	Kind string
	Name string
}

func (e *UnregisteredError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "retry strategy"
	}
	return fmt.Sprintf("%s %q is not registered", kind, e.Name)
}

type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns a registry holding the built-in "none" and "default"
// strategies.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}
	r.specs[StrategyNone] = NoneSpec()
	r.specs[StrategyDefault] = DefaultStrategySpec()
	return r
}

// NoneSpec never retries.
func NoneSpec() Spec {
	return Spec{Name: StrategyNone, MaxAttempts: 0, Backoff: BackoffConstant}
}

// DefaultStrategySpec retries transient failures three times, two seconds apart.
func DefaultStrategySpec() Spec {
	s := DefaultSpec()
	s.Name = StrategyDefault
	s.ShouldRetry = RetryOnTransientFailure
	return s
}

// Register adds a strategy, replacing any strategy of the same name.
func (r *Registry) Register(s Spec) error {
	if s.Name == "" {
		return errors.New("retry strategy name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[s.Name] = s
	return nil
}

func (r *Registry) Lookup(name string) (Spec, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	if !ok {
		return Spec{}, &UnregisteredError{Kind: "retry strategy", Name: name}
	}
	return s, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
