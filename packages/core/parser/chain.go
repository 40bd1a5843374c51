package parser

import (
	"fmt"
	"regexp"
	"strings"
)

var supportedMethods = map[string]bool{
	"GET":     true,
	"PUT":     true,
	"POST":    true,
	"PATCH":   true,
	"DELETE":  true,
	"HEAD":    true,
	"OPTIONS": true,
	"TRACE":   true,
}

var (
	nameCommentRe    = regexp.MustCompile(`^(?://|#)\s*@name\s+(\S+)\s*$`)
	captureCommentRe = regexp.MustCompile(`^(?://|#)\s*@capture\b\s*(.*)$`)
	captureSpecRe    = regexp.MustCompile(`^([\w-]+)\s*=\s*((?:request|response)\.(?:body|headers)\.\S+)$`)
	requestNameRe    = regexp.MustCompile(`^[\w-]+$`)
	httpVersionRe    = regexp.MustCompile(`^HTTP/\d(?:\.\d)?$`)
)

// accumulator collects the state of one block while its lines run through
// the chain. It never outlives ParseBlock.
type accumulator struct {
	file           string
	line           int
	methodResolved bool
	bodyMode       bool
	method         string
	uri            string
	headers        Headers
	body           []string
	directives     DirectiveSet
	name           string
	captures       []Capture
}

func (a *accumulator) overrides() *RetryOverrides {
	if a.directives.RetryOverrides == nil {
		a.directives.RetryOverrides = &RetryOverrides{}
	}
	return a.directives.RetryOverrides
}

func (a *accumulator) schedule(d *AssertionDescriptor) {
	d.Line = a.line
	a.directives.Assertions = append(a.directives.Assertions, d)
}

func (a *accumulator) errorf(column int, format string, args ...interface{}) *ParseError {
	return &ParseError{
		File:    a.file,
		Line:    a.line,
		Column:  column,
		Message: fmt.Sprintf(format, args...),
	}
}

type lineParser struct {
	name     string
	canParse func(acc *accumulator, line string) bool
	parse    func(acc *accumulator, line string) error
}

// lineParsers is consulted in order; the first parser that accepts a line
// consumes it.
var lineParsers = []lineParser{
	{name: "comment", canParse: isComment, parse: parseComment},
	{name: "directive", canParse: isDirective, parse: parseDirective},
	{name: "blank", canParse: isBlank, parse: parseBlank},
	{name: "request-line", canParse: isRequestLine, parse: parseRequestLine},
	{name: "header", canParse: isHeader, parse: parseHeader},
	{name: "body", canParse: isBody, parse: parseBody},
}

func isComment(acc *accumulator, line string) bool {
	if acc.bodyMode {
		return false
	}
	t := strings.TrimSpace(line)
	if strings.HasPrefix(t, "//") {
		return true
	}
	return strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "##")
}

func parseComment(acc *accumulator, line string) error {
	line = strings.TrimSpace(line)
	if m := nameCommentRe.FindStringSubmatch(line); m != nil {
		// Names are referenced as {{name.response...}}, so they must not
		// contain dots.
		if !requestNameRe.MatchString(m[1]) {
			return acc.errorf(strings.Index(line, m[1])+1, "invalid request name %q: use letters, digits, '_' and '-'", m[1])
		}
		acc.name = m[1]
		return nil
	}
	if m := captureCommentRe.FindStringSubmatch(line); m != nil {
		spec := captureSpecRe.FindStringSubmatch(strings.TrimSpace(m[1]))
		if spec == nil {
			return acc.errorf(1, "malformed @capture %q: expected \"name = response.body.<query>\"", strings.TrimSpace(m[1]))
		}
		acc.captures = append(acc.captures, Capture{Variable: spec[1], Query: spec[2], Line: acc.line})
	}
	return nil
}

func isDirective(acc *accumulator, line string) bool {
	return !acc.bodyMode && strings.HasPrefix(strings.TrimSpace(line), "##")
}

func parseDirective(acc *accumulator, line string) error {
	if acc.methodResolved {
		return acc.errorf(1, "directive must appear before the request line")
	}
	line = strings.TrimSpace(line)
	m := directiveNameRe.FindStringSubmatch(line)
	if m == nil {
		return acc.errorf(1, "malformed directive %q", line)
	}
	desc, ok := LookupDirective(m[1])
	if !ok {
		return acc.errorf(3, "unknown directive %s", m[1])
	}
	captures, ok := desc.Match(line)
	if !ok {
		return acc.errorf(len(m[0])+1, "invalid parameters for %s", desc.Name)
	}
	if err := directiveHandlers[desc.Name](acc, captures); err != nil {
		return &ParseError{File: acc.file, Line: acc.line, Column: len(m[0]) + 1, Message: desc.Name + ": " + err.Error(), Err: err}
	}
	return nil
}

func isBlank(acc *accumulator, line string) bool {
	return !acc.bodyMode && strings.TrimSpace(line) == ""
}

func parseBlank(acc *accumulator, _ string) error {
	if acc.methodResolved {
		acc.bodyMode = true
	}
	return nil
}

func isRequestLine(acc *accumulator, _ string) bool {
	return !acc.methodResolved && !acc.bodyMode
}

func parseRequestLine(acc *accumulator, line string) error {
	fields := strings.Fields(line)
	method := strings.ToUpper(fields[0])
	if !supportedMethods[method] {
		return acc.errorf(1, "unsupported method %q", fields[0])
	}
	rest := fields[1:]
	if n := len(rest); n > 0 && httpVersionRe.MatchString(rest[n-1]) {
		rest = rest[:n-1]
	}
	if len(rest) == 0 {
		return acc.errorf(len(fields[0])+1, "missing URI after %s", method)
	}
	if len(rest) > 1 {
		return acc.errorf(len(fields[0])+2, "unexpected text after URI: %q", strings.Join(rest[1:], " "))
	}
	acc.method = method
	acc.uri = rest[0]
	acc.methodResolved = true
	return nil
}

func isHeader(acc *accumulator, _ string) bool {
	return acc.methodResolved && !acc.bodyMode
}

func parseHeader(acc *accumulator, line string) error {
	idx := strings.Index(line, ":")
	if idx <= 0 {
		return acc.errorf(1, "malformed header %q", strings.TrimSpace(line))
	}
	name := strings.TrimSpace(line[:idx])
	value, err := FormatHeader(name, line[idx+1:])
	if err != nil {
		return &ParseError{File: acc.file, Line: acc.line, Column: idx + 2, Message: err.Error(), Err: err}
	}
	acc.headers.Add(name, value)
	return nil
}

func isBody(acc *accumulator, _ string) bool {
	return acc.bodyMode
}

func parseBody(acc *accumulator, line string) error {
	acc.body = append(acc.body, line)
	return nil
}
