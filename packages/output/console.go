package output

import (
	"fmt"
	"io"
	"os"

	"github.com/abdul-hamid-achik/hitflow/packages/core/runner"
	"github.com/fatih/color"
)

// formatValue formats a value for display, truncating long values
func formatValue(v any, maxLen int) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case []int:
		return describeInts(val)
	}
	str := fmt.Sprintf("%v", v)
	if len(str) > maxLen {
		return str[:maxLen] + "..."
	}
	return str
}

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) Report(s *runner.Summary) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	for _, group := range groupByFile(s) {
		fmt.Fprintf(f.writer, "\n%s\n\n", bold("Running: "+group.file))

		for _, r := range group.results {
			if r.Skipped {
				fmt.Fprintf(f.writer, "  %s %s", yellow("-"), r.Name)
				if r.SkipReason != "" {
					fmt.Fprintf(f.writer, " (%s)", r.SkipReason)
				}
				fmt.Fprintf(f.writer, "\n")
				continue
			}

			if r.Error != nil {
				fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), r.Name, red(fmt.Sprintf("(%v)", r.Error)))
				continue
			}

			symbol := green("✓")
			if !r.Passed {
				symbol = red("✗")
			}
			fmt.Fprintf(f.writer, "  %s %s %s\n", symbol, r.Name, cyan(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))

			if f.verbose {
				fmt.Fprintf(f.writer, "    %s %s -> %d\n", r.Method, r.URL, r.StatusCode)
				fmt.Fprintf(f.writer, "    Policy: %s, attempts: %d\n", r.Policy, r.Attempts)
			} else if r.Attempts > 1 {
				fmt.Fprintf(f.writer, "    %s\n", yellow(fmt.Sprintf("succeeded after %d attempts", r.Attempts)))
			}

			for _, a := range r.Assertions {
				if a.Passed {
					if f.verbose {
						fmt.Fprintf(f.writer, "    %s %s\n", green("✓"), a.Name)
					}
					continue
				}
				fmt.Fprintf(f.writer, "    %s %s\n", red("→"), a.Name)
				fmt.Fprintf(f.writer, "      Expected: %s\n", formatValue(a.Expected, 100))
				fmt.Fprintf(f.writer, "      Actual:   %s\n", formatValue(a.Actual, 100))
				if a.Message != "" {
					fmt.Fprintf(f.writer, "      %s\n", a.Message)
				}
			}
		}
	}

	for _, failure := range s.Failures {
		f.FormatError(failure)
	}

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Tests: ")
	if s.Passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", s.Passed)))
	}
	if s.Failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", s.Failed)))
	}
	if s.Skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", s.Skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", s.Passed+s.Failed+s.Skipped)
	fmt.Fprintf(f.writer, "Time:  %dms\n", s.Duration.Milliseconds())
	if l := s.Latency; l.Count > 0 {
		fmt.Fprintf(f.writer, "Latency: p50 %dms, p90 %dms, p99 %dms, max %dms\n",
			l.P50.Milliseconds(), l.P90.Milliseconds(), l.P99.Milliseconds(), l.Max.Milliseconds())
	}
	fmt.Fprintf(f.writer, "\n")
	return nil
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n", bold("hitflow"), version)
}
