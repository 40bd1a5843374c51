package cmd

import (
	"errors"
	"fmt"

	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <file|directory>...",
	Short: "Validate .http files without executing them",
	Long: `Parse .http files and check that every AUTH-PROVIDER and RETRY-STRATEGY
directive names a provider or strategy known to the configuration.

Exit codes: 2 for syntax errors, 3 for unknown provider or strategy names.

Examples:
  hitflow validate api.http
  hitflow validate ./tests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: validateCommand,
}

func validateCommand(cmd *cobra.Command, args []string) error {
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
	policies, err := newPolicyResolver(cfg, logger)
	if err != nil {
		return exitWith(ExitConfigError, err)
	}
	strategies := policies.Registry()

	var syntaxErrors, nameErrors int
	for _, file := range files {
		f, err := parser.ParseFile(file)
		if err != nil {
			var parseErr *parser.ParseError
			if !errors.As(err, &parseErr) {
				return exitWith(ExitUsageError, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Error in %s: %v\n", file, err)
			syntaxErrors++
			continue
		}

		valid := true
		for _, block := range f.Blocks {
			d := block.Directives
			if d.AuthProvider != "" {
				if _, ok := cfg.AuthProviders[d.AuthProvider]; !ok {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: auth provider %q is not configured\n", file, block.Line, d.AuthProvider)
					valid = false
				}
			}
			if d.RetryStrategy != "" {
				if _, err := strategies.Lookup(d.RetryStrategy); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s:%d: %v\n", file, block.Line, err)
					valid = false
				}
			}
		}
		if !valid {
			nameErrors++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Valid: %s (%d requests)\n", file, len(f.Blocks))
	}

	switch {
	case syntaxErrors > 0:
		return exitWith(ExitParseError, fmt.Errorf("validation failed: %d file(s) with syntax errors", syntaxErrors))
	case nameErrors > 0:
		return exitWith(ExitConfigError, fmt.Errorf("validation failed: %d file(s) refer to unknown names", nameErrors))
	}
	return nil
}
