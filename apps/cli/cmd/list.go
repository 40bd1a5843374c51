package cmd

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list <file|directory>...",
	Short: "List the requests of .http files",
	Long: `List every request block with its method, URL and directives.

Examples:
  hitflow list api.http
  hitflow list ./tests/`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := false
	for _, file := range files {
		f, err := parser.ParseFile(file)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Error parsing %s: %v\n", file, err)
			failed = true
			continue
		}

		fmt.Fprintf(out, "\n%s:\n", file)
		for _, block := range f.Blocks {
			fmt.Fprintf(out, "  - %s\n", block.DisplayName())
			fmt.Fprintf(out, "    %s %s\n", block.Envelope.Method(), block.Envelope.URI())
			for _, line := range describeDirectives(block.Directives) {
				fmt.Fprintf(out, "    %s\n", line)
			}
		}
	}

	if failed {
		return exitWith(ExitParseError, nil)
	}
	return nil
}

func describeDirectives(d parser.DirectiveSet) []string {
	var lines []string
	if d.AuthProvider != "" {
		lines = append(lines, "auth: "+d.AuthProvider)
	}
	if d.RetryStrategy != "" {
		lines = append(lines, "retry: "+d.RetryStrategy)
	}
	if len(d.RetryUntilStatus) > 0 {
		lines = append(lines, "retry until: "+joinInts(d.RetryUntilStatus))
	}
	if o := d.RetryOverrides; !o.IsEmpty() {
		var parts []string
		if o.MaxAttempts != nil {
			parts = append(parts, fmt.Sprintf("attempts=%d", *o.MaxAttempts))
		}
		if o.Backoff != "" {
			parts = append(parts, "backoff="+o.Backoff)
		}
		if o.BaseDelay != nil {
			parts = append(parts, "delay="+o.BaseDelay.String())
		}
		if o.MaxDelay != nil {
			parts = append(parts, "max-delay="+o.MaxDelay.String())
		}
		if o.Jitter != nil {
			parts = append(parts, fmt.Sprintf("jitter=%t", *o.Jitter))
		}
		lines = append(lines, "retry overrides: "+strings.Join(parts, " "))
	}
	for _, a := range d.Assertions {
		lines = append(lines, "test: "+a.Name)
	}
	return lines
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
