package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/resilience"
	"gopkg.in/yaml.v3"
)

// Config represents the hitflow configuration file.
type Config struct {
	DefaultEnvironment string                    `yaml:"defaultEnvironment,omitempty"`
	Timeout            Duration                  `yaml:"timeout,omitempty"`
	FollowRedirects    *bool                     `yaml:"followRedirects,omitempty"`
	MaxRedirects       int                       `yaml:"maxRedirects,omitempty"`
	ValidateSSL        *bool                     `yaml:"validateSSL,omitempty"`
	Proxy              string                    `yaml:"proxy,omitempty"`
	Headers            map[string]string         `yaml:"headers,omitempty"`
	RateLimit          float64                   `yaml:"rateLimit,omitempty"`
	Bail               *bool                     `yaml:"bail,omitempty"`
	NoColor            *bool                     `yaml:"noColor,omitempty"`
	Reporter           string                    `yaml:"reporter,omitempty"`
	History            string                    `yaml:"history,omitempty"`
	FallbackStrategy   string                    `yaml:"fallbackStrategy,omitempty"`
	Variables          Variables                 `yaml:"variables,omitempty"`
	Environments       map[string]map[string]any `yaml:"environments,omitempty"`
	RetryStrategies    map[string]RetryStrategy  `yaml:"retryStrategies,omitempty"`
	AuthProviders      map[string]auth.Settings  `yaml:"authProviders,omitempty"`
}

type Variables struct {
	Global     map[string]any `yaml:"global,omitempty"`
	Collection map[string]any `yaml:"collection,omitempty"`
}

// RetryStrategy is the file form of a named retry policy.
type RetryStrategy struct {
	MaxAttempts           *int     `yaml:"maxAttempts,omitempty"`
	Backoff               string   `yaml:"backoff,omitempty"`
	Delay                 Duration `yaml:"delay,omitempty"`
	MaxDelay              Duration `yaml:"maxDelay,omitempty"`
	Jitter                bool     `yaml:"jitter,omitempty"`
	RetryOnStatus         []int    `yaml:"retryOnStatus,omitempty"`
	RetryOnTransportError *bool    `yaml:"retryOnTransportError,omitempty"`
}

// Spec converts the strategy into a resilience spec named name. Without
// retryOnStatus the strategy retries transient failures.
func (s RetryStrategy) Spec(name string) (resilience.Spec, error) {
	spec := resilience.DefaultSpec()
	spec.Name = name
	if s.MaxAttempts != nil {
		if *s.MaxAttempts < 0 {
			return spec, fmt.Errorf("retry strategy %s: maxAttempts must not be negative", name)
		}
		spec.MaxAttempts = *s.MaxAttempts
	}
	kind, err := resilience.ParseBackoffKind(s.Backoff)
	if err != nil {
		return spec, fmt.Errorf("retry strategy %s: %w", name, err)
	}
	spec.Backoff = kind
	if s.Delay > 0 {
		spec.BaseDelay = time.Duration(s.Delay)
	}
	spec.MaxDelay = time.Duration(s.MaxDelay)
	spec.Jitter = s.Jitter

	if len(s.RetryOnStatus) == 0 {
		spec.ShouldRetry = resilience.RetryOnTransientFailure
		return spec, nil
	}
	spec.ShouldRetry = resilience.RetryOnStatus(s.RetryOnStatus...)
	if getBool(s.RetryOnTransportError, true) {
		spec.ShouldRetry = resilience.Or(spec.ShouldRetry, resilience.RetryOnTransportError)
	}
	return spec, nil
}

// Duration accepts Go duration strings ("1.5s") or integer milliseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var ms int64
	if err := value.Decode(&ms); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: invalid duration", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", value.Line, s)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// BoolPtr is exported version of boolPtr for external use
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetBail returns the bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Bail, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"hitflow.yaml",
	"hitflow.yml",
	".hitflow.yaml",
	".hitflow.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}
	return DefaultConfig(), nil
}

// loadConfigFromFile reads a YAML config. ${VAR} references are expanded
// from the process environment before decoding.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return config, nil
}

// Validate checks retry strategies and auth providers without contacting
// any service.
func (c *Config) Validate() error {
	for _, name := range sortedKeys(c.RetryStrategies) {
		if _, err := c.RetryStrategies[name].Spec(name); err != nil {
			return err
		}
	}
	for _, name := range sortedKeys(c.AuthProviders) {
		if _, err := auth.New(name, c.AuthProviders[name]); err != nil {
			return err
		}
	}
	switch c.Reporter {
	case "", "console", "json", "junit":
	default:
		return fmt.Errorf("unknown reporter %q (expected console, json or junit)", c.Reporter)
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c

	if other.DefaultEnvironment != "" {
		result.DefaultEnvironment = other.DefaultEnvironment
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.Reporter != "" {
		result.Reporter = other.Reporter
	}
	if other.History != "" {
		result.History = other.History
	}
	if other.FallbackStrategy != "" {
		result.FallbackStrategy = other.FallbackStrategy
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.Bail != nil {
		result.Bail = other.Bail
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	result.Headers = mergeMaps(c.Headers, other.Headers)
	result.Variables.Global = mergeMaps(c.Variables.Global, other.Variables.Global)
	result.Variables.Collection = mergeMaps(c.Variables.Collection, other.Variables.Collection)
	result.Environments = mergeMaps(c.Environments, other.Environments)
	result.RetryStrategies = mergeMaps(c.RetryStrategies, other.RetryStrategies)
	result.AuthProviders = mergeMaps(c.AuthProviders, other.AuthProviders)

	return &result
}

func mergeMaps[V any](base, other map[string]V) map[string]V {
	if len(base) == 0 && len(other) == 0 {
		return base
	}
	out := make(map[string]V, len(base)+len(other))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SaveConfig saves the configuration to a file
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
