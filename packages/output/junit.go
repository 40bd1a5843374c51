package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/core/runner"
)

// JUnit XML structures

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite represents a test suite (typically a file)
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase represents a single test case
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitFailure represents a test failure
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError represents a test error
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped represents a skipped test
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats test results as JUnit XML
type JUnitFormatter struct {
	writer io.Writer
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

// Report writes one test suite per request file.
func (f *JUnitFormatter) Report(s *runner.Summary) error {
	timestamp := time.Now().Format(time.RFC3339)
	var suites []JUnitTestSuite
	var totalTests, totalFailures, totalErrors, totalSkipped int

	for _, group := range groupByFile(s) {
		suite := JUnitTestSuite{
			Name:      group.file,
			Tests:     len(group.results),
			Timestamp: timestamp,
			TestCases: make([]JUnitTestCase, 0, len(group.results)),
		}

		for _, r := range group.results {
			tc := JUnitTestCase{
				Name:      r.Name,
				ClassName: group.file,
				Time:      r.Duration.Seconds(),
			}
			suite.Time += r.Duration.Seconds()

			switch {
			case r.Skipped:
				suite.Skipped++
				tc.Skipped = &JUnitSkipped{
					Message: r.SkipReason,
				}
			case r.Error != nil:
				suite.Errors++
				tc.Error = &JUnitError{
					Message: r.Error.Error(),
					Type:    "Error",
				}
			case !r.Passed:
				suite.Failures++
				var failureMsg strings.Builder
				for _, a := range r.Assertions {
					if !a.Passed {
						fmt.Fprintf(&failureMsg, "%s: expected %s, got %s. %s\n",
							a.Name, formatValue(a.Expected, 200), formatValue(a.Actual, 200), a.Message)
					}
				}
				if len(r.Assertions) == 0 {
					fmt.Fprintf(&failureMsg, "unexpected status %d\n", r.StatusCode)
				}
				tc.Failure = &JUnitFailure{
					Message: "Assertion failed",
					Type:    "AssertionError",
					Content: failureMsg.String(),
				}
			}

			suite.TestCases = append(suite.TestCases, tc)
		}

		totalTests += suite.Tests
		totalFailures += suite.Failures
		totalErrors += suite.Errors
		totalSkipped += suite.Skipped
		suites = append(suites, suite)
	}

	// Step failures that stopped the run before a call was recorded
	var stepErrors []JUnitTestCase
	for _, failure := range s.Failures {
		if failure.Step == nil {
			continue
		}
		stepErrors = append(stepErrors, JUnitTestCase{
			Name:      failure.Step.Name(),
			ClassName: "pipeline",
			Error:     &JUnitError{Message: failure.Err.Error(), Type: "StepFailure"},
		})
	}
	if len(stepErrors) > 0 {
		suites = append(suites, JUnitTestSuite{
			Name:      "pipeline",
			Tests:     len(stepErrors),
			Errors:    len(stepErrors),
			Timestamp: timestamp,
			TestCases: stepErrors,
		})
		totalTests += len(stepErrors)
		totalErrors += len(stepErrors)
	}

	out := JUnitTestSuites{
		Name:       "hitflow",
		Tests:      totalTests,
		Failures:   totalFailures,
		Errors:     totalErrors,
		Skipped:    totalSkipped,
		Time:       s.Duration.Seconds(),
		Timestamp:  timestamp,
		TestSuites: suites,
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return err
	}
	_, err := fmt.Fprintln(f.writer)
	return err
}
