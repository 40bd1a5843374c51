package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/core/config"
	"github.com/abdul-hamid-achik/hitflow/packages/core/env"
	"github.com/abdul-hamid-achik/hitflow/packages/http"
	"github.com/abdul-hamid-achik/hitflow/packages/resilience"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// systemVarPrefix marks OS environment variables that become global
// variables, e.g. HITFLOW_VAR_token -> {{token}}.
const systemVarPrefix = "HITFLOW_VAR_"

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// newLogger builds the diagnostic logger. HITFLOW_LOG_LEVEL wins over the
// -v count; without either only warnings and errors are logged.
func newLogger(verbosity int) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	switch {
	case verbosity >= 2:
		level = zapcore.DebugLevel
	case verbosity == 1:
		level = zapcore.InfoLevel
	}
	if raw := os.Getenv("HITFLOW_LOG_LEVEL"); raw != "" {
		parsed, err := zapcore.ParseLevel(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid HITFLOW_LOG_LEVEL %q: %w", raw, err)
		}
		level = parsed
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = level > zapcore.DebugLevel
	if noColorFlag {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	} else {
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFlag)
	if err != nil {
		return nil, exitWith(ExitConfigError, fmt.Errorf("loading config: %w", err))
	}
	return cfg, nil
}

// newPolicyResolver registers the configured retry strategies on top of the
// built-in ones.
func newPolicyResolver(cfg *config.Config, logger *zap.Logger) (*resilience.Resolver, error) {
	registry := resilience.NewRegistry()
	for name, strategy := range cfg.RetryStrategies {
		spec, err := strategy.Spec(name)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(spec); err != nil {
			return nil, err
		}
	}
	opts := []resilience.ResolverOption{resilience.WithLogger(logger)}
	if cfg.FallbackStrategy != "" {
		opts = append(opts, resilience.WithFallbackStrategy(cfg.FallbackStrategy))
	}
	return resilience.NewResolver(registry, opts...), nil
}

// newAuthRegistry builds the configured providers. Credentials may refer to
// variables, which are resolved once here.
func newAuthRegistry(cfg *config.Config, variables *env.Resolver) (*auth.Registry, error) {
	registry := auth.NewRegistry()
	for name, settings := range cfg.AuthProviders {
		resolved, err := settings.Resolve(variables.ResolveLine)
		if err != nil {
			return nil, fmt.Errorf("auth provider %s: %w", name, err)
		}
		provider, err := auth.New(name, resolved)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

type variableSources struct {
	environment string
	envFile     string
	vars        []string
}

// newVariableResolver fills the store tiers: config globals, HITFLOW_VAR_*
// and --var into the global tier, the selected environment and the env file
// into the environment tier, config collection variables into the
// collection tier.
func newVariableResolver(cfg *config.Config, src variableSources, logger *zap.Logger) (*env.Resolver, error) {
	store := env.NewStore()
	store.SetAll(env.TierGlobal, cfg.Variables.Global)
	store.SetStrings(env.TierGlobal, env.LoadSystemEnv(systemVarPrefix))
	for _, kv := range src.vars {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, exitWith(ExitUsageError, fmt.Errorf("invalid --var %q (expected name=value)", kv))
		}
		store.Set(env.TierGlobal, strings.TrimSpace(key), value)
	}

	name := src.environment
	if name == "" {
		name = cfg.DefaultEnvironment
	}
	vars, err := env.LoadEnvironment(name, cfg.Environments)
	if err != nil {
		return nil, exitWith(ExitConfigError, err)
	}
	store.SetAll(env.TierEnvironment, vars)
	if src.envFile != "" {
		fileVars, err := env.LoadDotEnv(src.envFile)
		if err != nil {
			return nil, exitWith(ExitConfigError, err)
		}
		store.SetStrings(env.TierEnvironment, fileVars)
	}

	store.SetAll(env.TierCollection, cfg.Variables.Collection)
	return env.NewResolver(env.WithStore(store), env.WithLogger(logger)), nil
}

type clientSettings struct {
	timeout     time.Duration
	proxy       string
	insecure    bool
	rateLimit   float64
	noRedirects bool
}

func newHTTPClient(cfg *config.Config, s clientSettings) *http.Client {
	timeout := time.Duration(cfg.Timeout)
	if s.timeout > 0 {
		timeout = s.timeout
	}
	proxy := cfg.Proxy
	if s.proxy != "" {
		proxy = s.proxy
	}
	rate := cfg.RateLimit
	if s.rateLimit > 0 {
		rate = s.rateLimit
	}

	opts := []http.ClientOption{
		http.WithTimeout(timeout),
		http.WithFollowRedirects(cfg.GetFollowRedirects() && !s.noRedirects),
		http.WithValidateSSL(cfg.GetValidateSSL() && !s.insecure),
		http.WithDefaultHeaders(cfg.Headers),
	}
	if cfg.MaxRedirects > 0 {
		opts = append(opts, http.WithMaxRedirects(cfg.MaxRedirects))
	}
	if proxy != "" {
		opts = append(opts, http.WithProxy(proxy))
	}
	if rate > 0 {
		opts = append(opts, http.WithRateLimit(rate, 1))
	}
	return http.NewClient(opts...)
}

func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if info.IsDir() {
			err := filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !info.IsDir() && isRequestFile(path) {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else if isRequestFile(arg) {
			files = append(files, arg)
		}
	}

	if len(files) == 0 {
		return nil, exitWith(ExitUsageError, fmt.Errorf("no .http or .rest files found"))
	}
	return files, nil
}

func isRequestFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".http" || ext == ".rest"
}
