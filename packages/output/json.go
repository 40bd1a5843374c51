package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/core/runner"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	RunID    string       `json:"runId"`
	Summary  JSONSummary  `json:"summary"`
	Tests    []JSONTest   `json:"tests"`
	Errors   []string     `json:"errors,omitempty"`
	Latency  *JSONLatency `json:"latency,omitempty"`
	Duration float64      `json:"duration"`
	Time     string       `json:"time"`
}

// JSONSummary represents the test summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// JSONLatency holds call latency percentiles in milliseconds
type JSONLatency struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Mean  float64 `json:"mean"`
	P50   float64 `json:"p50"`
	P90   float64 `json:"p90"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
}

// JSONTest represents a single call result
type JSONTest struct {
	Name       string          `json:"name"`
	File       string          `json:"file"`
	Line       int             `json:"line"`
	Passed     bool            `json:"passed"`
	Skipped    bool            `json:"skipped,omitempty"`
	SkipReason string          `json:"skipReason,omitempty"`
	Duration   float64         `json:"duration"`
	Error      string          `json:"error,omitempty"`
	Method     string          `json:"method,omitempty"`
	URL        string          `json:"url,omitempty"`
	StatusCode int             `json:"statusCode,omitempty"`
	Policy     string          `json:"policy,omitempty"`
	Attempts   int             `json:"attempts,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
}

// JSONAssertion represents an assertion result
type JSONAssertion struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Line     int    `json:"line,omitempty"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

// JSONFormatter writes a finished run as one JSON document
type JSONFormatter struct {
	writer io.Writer
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func (f *JSONFormatter) Report(s *runner.Summary) error {
	output := JSONOutput{
		RunID: s.RunID,
		Summary: JSONSummary{
			Total:   len(s.Results),
			Passed:  s.Passed,
			Failed:  s.Failed,
			Skipped: s.Skipped,
		},
		Tests:    make([]JSONTest, 0, len(s.Results)),
		Duration: milliseconds(s.Duration),
		Time:     time.Now().Format(time.RFC3339),
	}

	for _, r := range s.Results {
		test := JSONTest{
			Name:       r.Name,
			File:       r.File,
			Line:       r.Line,
			Passed:     r.Passed,
			Skipped:    r.Skipped,
			SkipReason: r.SkipReason,
			Duration:   milliseconds(r.Duration),
			Method:     r.Method,
			URL:        r.URL,
			StatusCode: r.StatusCode,
			Policy:     r.Policy,
			Attempts:   r.Attempts,
		}
		if r.Error != nil {
			test.Error = r.Error.Error()
		}
		for _, a := range r.Assertions {
			test.Assertions = append(test.Assertions, JSONAssertion{
				Name:     a.Name,
				Kind:     a.Kind.String(),
				Line:     a.Line,
				Expected: a.Expected,
				Actual:   a.Actual,
				Passed:   a.Passed,
				Message:  a.Message,
			})
		}
		output.Tests = append(output.Tests, test)
	}

	for _, failure := range s.Failures {
		output.Errors = append(output.Errors, failure.Error())
	}

	if l := s.Latency; l.Count > 0 {
		output.Latency = &JSONLatency{
			Count: l.Count,
			Min:   milliseconds(l.Min),
			Mean:  milliseconds(l.Mean),
			P50:   milliseconds(l.P50),
			P90:   milliseconds(l.P90),
			P99:   milliseconds(l.P99),
			Max:   milliseconds(l.Max),
		}
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func milliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
