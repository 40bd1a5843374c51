package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/abdul-hamid-achik/hitflow/packages/core/runner"
	"github.com/abdul-hamid-achik/hitflow/packages/history"
	"github.com/abdul-hamid-achik/hitflow/packages/output"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run <file|directory>...",
	Short: "Run the requests of .http files",
	Long: `Run the requests defined in .http files. Every file is one test case:
its requests run in order and may refer to earlier responses of the same
file with {{name.response.body.$.path}}.

Examples:
  hitflow run api.http
  hitflow run api.http --env staging
  hitflow run ./tests/ --bail -o junit --output-file report.xml
  hitflow run api.http --var token=abc --watch`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	envFlag         string
	envFileFlag     string
	varFlags        []string
	bailFlag        bool
	timeoutFlag     time.Duration
	outputFlag      string
	outputFileFlag  string
	watchFlag       bool
	proxyFlag       string
	insecureFlag    bool
	noRedirectsFlag bool
	rateLimitFlag   float64
	historyFlag     string
)

func init() {
	runCmd.Flags().StringVarP(&envFlag, "env", "e", getEnvString("HITFLOW_ENV", ""), "Environment to use (env: HITFLOW_ENV)")
	runCmd.Flags().StringVar(&envFileFlag, "env-file", getEnvString("HITFLOW_ENV_FILE", ""), "Path to .env file for variable interpolation (env: HITFLOW_ENV_FILE)")
	runCmd.Flags().StringArrayVar(&varFlags, "var", nil, "Set a global variable (name=value, repeatable)")

	runCmd.Flags().StringVarP(&outputFlag, "output", "o", getEnvString("HITFLOW_OUTPUT", ""), "Output format: console, json, junit (env: HITFLOW_OUTPUT)")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", getEnvString("HITFLOW_OUTPUT_FILE", ""), "Write output to file (default: stdout) (env: HITFLOW_OUTPUT_FILE)")

	runCmd.Flags().BoolVar(&bailFlag, "bail", getEnvBool("HITFLOW_BAIL", false), "Stop on first failure (env: HITFLOW_BAIL)")
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Request timeout, overrides the config file (e.g., 30s, 1m)")
	runCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch files for changes and re-run tests")
	runCmd.Flags().StringVar(&historyFlag, "history", getEnvString("HITFLOW_HISTORY", ""), "SQLite file recording every executed call (env: HITFLOW_HISTORY)")

	runCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("HITFLOW_PROXY", ""), "Proxy URL for HTTP requests (env: HITFLOW_PROXY)")
	runCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HITFLOW_INSECURE", false), "Disable SSL certificate validation (env: HITFLOW_INSECURE)")
	runCmd.Flags().BoolVar(&noRedirectsFlag, "no-redirects", false, "Do not follow redirects")
	runCmd.Flags().Float64Var(&rateLimitFlag, "rate-limit", getEnvFloat("HITFLOW_RATE_LIMIT", 0), "Maximum requests per second (env: HITFLOW_RATE_LIMIT)")
}

func runCommand(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(verboseFlag)
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	defer func() { _ = logger.Sync() }()

	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Setup output writer
	var outWriter io.Writer = cmd.OutOrStdout()
	if outputFileFlag != "" {
		f, err := os.Create(outputFileFlag)
		if err != nil {
			return exitWith(ExitUsageError, fmt.Errorf("cannot create output file: %w", err))
		}
		defer f.Close()
		outWriter = f
	}
	format := outputFlag
	if format == "" {
		format = cfg.Reporter
	}
	reporter, err := output.NewReporter(format, outWriter, verboseFlag > 0, noColorFlag || cfg.GetNoColor())
	if err != nil {
		return exitWith(ExitUsageError, err)
	}
	if console, ok := reporter.(*output.ConsoleFormatter); ok {
		console.FormatHeader(version)
	}

	client := newHTTPClient(cfg, clientSettings{
		timeout:     timeoutFlag,
		proxy:       proxyFlag,
		insecure:    insecureFlag,
		rateLimit:   rateLimitFlag,
		noRedirects: noRedirectsFlag,
	})
	policies, err := newPolicyResolver(cfg, logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}

	historyPath := historyFlag
	if historyPath == "" {
		historyPath = cfg.History
	}
	var store *history.Store
	if historyPath != "" {
		store, err = history.Open(historyPath)
		if err != nil {
			return exitWith(ExitConfigError, err)
		}
		defer store.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Variables are rebuilt for every run so that watch mode picks up
	// changes to the env file.
	runOnce := func() (runner.Status, error) {
		variables, err := newVariableResolver(cfg, variableSources{
			environment: envFlag,
			envFile:     envFileFlag,
			vars:        varFlags,
		}, logger)
		if err != nil {
			return runner.StatusFailure, err
		}
		authRegistry, err := newAuthRegistry(cfg, variables)
		if err != nil {
			return runner.StatusFailure, exitWith(ExitConfigError, err)
		}

		r := runner.NewRunner(&runner.Config{
			Client:    client,
			Variables: variables,
			Policies:  policies,
			Auth:      authRegistry,
			History:   store,
			Reporter:  reporter,
			Logger:    logger,
			Bail:      bailFlag || cfg.GetBail(),
		})
		summary, status := r.Run(ctx, files...)
		return status, runError(summary, status)
	}

	status, err := runOnce()
	if !watchFlag || ctx.Err() != nil {
		return err
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code != ExitTestFailure && exitErr.Code != ExitParseError {
		return err
	}
	logger.Debug("first run finished", zap.Stringer("status", status))

	return watch(ctx, cmd, files, args, logger, func() {
		if _, err := runOnce(); err != nil && ctx.Err() == nil {
			logger.Warn("run failed", zap.Error(err))
		}
	})
}

// runError maps the pipeline status to the CLI exit code. A parse error
// anywhere in the run takes precedence over assertion failures.
func runError(summary *runner.Summary, status runner.Status) error {
	switch status {
	case runner.StatusSuccess:
		return nil
	case runner.StatusCancelled:
		return exitWith(ExitInterrupted, nil)
	}
	for _, f := range summary.Failures {
		var parseErr *parser.ParseError
		if errors.As(f.Err, &parseErr) {
			return exitWith(ExitParseError, nil)
		}
	}
	return exitWith(ExitTestFailure, nil)
}

func watch(ctx context.Context, cmd *cobra.Command, files, args []string, logger *zap.Logger, rerun func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	// Add files and directories to watch
	watchedDirs := make(map[string]bool)
	for _, file := range files {
		dir := filepath.Dir(file)
		if !watchedDirs[dir] {
			if err := watcher.Add(dir); err != nil {
				logger.Warn("failed to watch directory", zap.String("dir", dir), zap.Error(err))
			}
			watchedDirs[dir] = true
		}
	}

	// Also watch the original args if they're directories
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err == nil && info.IsDir() {
			_ = filepath.Walk(arg, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if info.IsDir() && !watchedDirs[path] {
					_ = watcher.Add(path)
					watchedDirs[path] = true
				}
				return nil
			})
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\nWatching for changes... (press Ctrl+C to stop)\n\n")

	// Debounce timer for rapid file changes
	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return exitWith(ExitInterrupted, nil)

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Write) && isRequestFile(event.Name) {
				logger.Debug("file changed", zap.String("file", event.Name))
				debounce = time.After(WatchDebounceDelay)
			}

		case <-debounce:
			debounce = nil
			fmt.Fprintf(cmd.OutOrStdout(), "\nFile changed, re-running tests...\n")
			rerun()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error", zap.Error(err))
		}
	}
}
