package parser

import (
	"os"
	"sort"
	"strings"
)

type Option func(*options)

type options struct {
	filename  string
	defaults  map[string]string
	transform func(string) (string, error)
}

// WithDefaultHeaders sets client-wide headers that are added to an envelope
// when the block does not set a header of the same name.
func WithDefaultHeaders(headers map[string]string) Option {
	return func(o *options) {
		o.defaults = headers
	}
}

// WithLineTransform registers a function applied to every line of a block
// before the line parsers see it. Variable substitution hooks in here.
func WithLineTransform(fn func(string) (string, error)) Option {
	return func(o *options) {
		o.transform = fn
	}
}

func WithFilename(name string) Option {
	return func(o *options) {
		o.filename = name
	}
}

func buildOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SplitBlocks cuts file content into raw blocks on lines starting with ###.
// Blocks holding nothing but comments and blank lines are dropped.
func SplitBlocks(content string) []RawBlock {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	lines := strings.Split(content, "\n")

	var blocks []RawBlock
	var current []string
	title := ""
	start := 1

	flush := func() {
		if hasRequestContent(current) {
			blocks = append(blocks, RawBlock{
				Text:  strings.Join(current, "\n"),
				Title: title,
				Line:  start,
			})
		}
		current = nil
	}

	for i, line := range lines {
		if strings.HasPrefix(line, "###") {
			flush()
			title = strings.TrimSpace(strings.TrimLeft(line, "#"))
			start = i + 2
			continue
		}
		current = append(current, line)
	}
	flush()
	return blocks
}

func hasRequestContent(lines []string) bool {
	for _, line := range lines {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "//") {
			continue
		}
		if strings.HasPrefix(t, "#") && !strings.HasPrefix(t, "##") {
			continue
		}
		return true
	}
	return false
}

// ParseBlock runs each line of a raw block through the line parser chain and
// builds the request envelope and directive set.
func ParseBlock(raw RawBlock, opts ...Option) (*Block, error) {
	o := buildOptions(opts)
	acc := &accumulator{file: o.filename}

	lines := strings.Split(raw.Text, "\n")
	for i, line := range lines {
		acc.line = raw.Line + i
		// Comments are not resolved, so they may mention tokens that only
		// exist later in the run.
		if o.transform != nil && !isComment(acc, line) {
			transformed, err := o.transform(line)
			if err != nil {
				return nil, &ParseError{File: o.filename, Line: acc.line, Column: 1, Message: err.Error(), Err: err}
			}
			line = transformed
		}
		line = strings.TrimRight(line, "\r")
		for _, lp := range lineParsers {
			if !lp.canParse(acc, line) {
				continue
			}
			if err := lp.parse(acc, line); err != nil {
				return nil, err
			}
			break
		}
	}

	if !acc.methodResolved {
		return nil, &ParseError{File: o.filename, Line: raw.Line, Column: 1, Message: "missing request line"}
	}

	if err := applyDefaults(acc, o.defaults); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(strings.Join(acc.body, "\n"))
	return &Block{
		Name:       acc.name,
		Title:      raw.Title,
		Line:       raw.Line,
		Envelope:   NewEnvelope(acc.method, acc.uri, acc.headers, body),
		Directives: acc.directives,
		Captures:   acc.captures,
	}, nil
}

func applyDefaults(acc *accumulator, defaults map[string]string) error {
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if acc.headers.Has(name) {
			continue
		}
		value, err := FormatHeader(name, defaults[name])
		if err != nil {
			return &ParseError{File: acc.file, Line: acc.line, Column: 1, Message: "default " + err.Error(), Err: err}
		}
		acc.headers.Add(name, value)
	}
	return nil
}

func Parse(content, filename string, opts ...Option) (*File, error) {
	opts = append(opts, WithFilename(filename))
	file := &File{Path: filename}
	for _, raw := range SplitBlocks(content) {
		block, err := ParseBlock(raw, opts...)
		if err != nil {
			return nil, err
		}
		file.Blocks = append(file.Blocks, block)
	}
	return file, nil
}

func ParseFile(path string, opts ...Option) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(content), path, opts...)
}
