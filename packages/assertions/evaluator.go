package assertions

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/abdul-hamid-achik/hitflow/packages/http"
	"github.com/xeipuuv/gojsonschema"
)

type Result struct {
	Name     string
	Kind     parser.AssertionKind
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Line     int
}

type Evaluator struct {
	response *http.Response
	baseDir  string // Base directory for resolving schema file paths
}

type EvaluatorOption func(*Evaluator)

// WithBaseDir resolves relative schema paths against dir.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{response: resp}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateAll evaluates descriptors in the order they were scheduled.
func (e *Evaluator) EvaluateAll(descs []*parser.AssertionDescriptor) []*Result {
	results := make([]*Result, 0, len(descs))
	for _, d := range descs {
		results = append(results, e.Evaluate(d))
	}
	return results
}

func (e *Evaluator) Evaluate(d *parser.AssertionDescriptor) *Result {
	result := &Result{Name: d.Name, Kind: d.Kind, Line: d.Line}

	switch d.Kind {
	case parser.AssertStatus:
		result.Expected = d.Statuses
		result.Actual = e.response.StatusCode
		result.Passed = slices.Contains(d.Statuses, e.response.StatusCode)
		if !result.Passed {
			result.Message = fmt.Sprintf("expected status %s, got %d", describeCodes(d.Statuses), e.response.StatusCode)
		}
	case parser.AssertHasBody:
		hasBody := len(strings.TrimSpace(string(e.response.Body))) > 0
		result.Expected = d.Present
		result.Actual = hasBody
		result.Passed = hasBody == d.Present
		if !result.Passed {
			if d.Present {
				result.Message = "expected a response body, got none"
			} else {
				result.Message = fmt.Sprintf("expected no response body, got %d bytes", len(e.response.Body))
			}
		}
	case parser.AssertHasHeader:
		result.Expected = d.Header
		result.Passed = e.response.HasHeader(d.Header)
		if result.Passed {
			result.Actual = e.response.Header(d.Header)
		} else {
			result.Message = fmt.Sprintf("expected header %s to be present", d.Header)
		}
	case parser.AssertBodySchema:
		result.Expected = d.SchemaPath
		result.Passed, result.Message = e.validateSchema(d.SchemaPath)
	default:
		result.Message = fmt.Sprintf("unsupported assertion kind %s", d.Kind)
	}
	return result
}

func (e *Evaluator) validateSchema(schemaPath string) (bool, string) {
	path := schemaPath
	if !filepath.IsAbs(path) && e.baseDir != "" {
		path = filepath.Join(e.baseDir, path)
	}
	schemaData, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("failed to read schema file: %v", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaData)
	documentLoader := gojsonschema.NewBytesLoader(e.response.Body)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return false, fmt.Sprintf("schema validation error: %v", err)
	}
	if result.Valid() {
		return true, ""
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, desc.String())
	}
	return false, fmt.Sprintf("schema validation failed: %s", strings.Join(errs, "; "))
}

func describeCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "one of [" + strings.Join(parts, ", ") + "]"
}

// Passed reports whether every result passed.
func Passed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
