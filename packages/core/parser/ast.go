package parser

import (
	"strconv"
	"strings"
	"time"
)

type File struct {
	Path   string
	Blocks []*Block
}

// RawBlock is the unparsed text of one ### delimited request block.
type RawBlock struct {
	Text  string
	Title string
	Line  int
}

type Block struct {
	Name       string
	Title      string
	Line       int
	Envelope   *Envelope
	Directives DirectiveSet
	Captures   []Capture
}

// Capture copies part of the block's exchange into a test-case variable
// once the call has completed. It is written as
// "# @capture token = response.body.$.token".
type Capture struct {
	Variable string
	Query    string
	Line     int
}

// DisplayName returns the @name of the block, falling back to the
// separator title and finally to the request line.
func (b *Block) DisplayName() string {
	if b.Name != "" {
		return b.Name
	}
	if b.Title != "" {
		return b.Title
	}
	if b.Envelope != nil {
		return b.Envelope.Method() + " " + b.Envelope.URI()
	}
	return "request at line " + strconv.Itoa(b.Line)
}

type DirectiveSet struct {
	AuthProvider     string
	RetryStrategy    string
	RetryOverrides   *RetryOverrides
	RetryUntilStatus []int
	Assertions       []*AssertionDescriptor
}

// RetryOverrides holds the explicit per-field retry directives of a block.
// A nil field was not present in the block.
type RetryOverrides struct {
	MaxAttempts *int
	Backoff     string
	BaseDelay   *time.Duration
	MaxDelay    *time.Duration
	Jitter      *bool
}

func (o *RetryOverrides) IsEmpty() bool {
	return o == nil || (o.MaxAttempts == nil && o.Backoff == "" && o.BaseDelay == nil && o.MaxDelay == nil && o.Jitter == nil)
}

type AssertionKind int

const (
	AssertStatus AssertionKind = iota
	AssertHasBody
	AssertHasHeader
	AssertBodySchema
)

func (k AssertionKind) String() string {
	switch k {
	case AssertStatus:
		return "status"
	case AssertHasBody:
		return "has-body"
	case AssertHasHeader:
		return "has-header"
	case AssertBodySchema:
		return "body-schema"
	default:
		return "unknown"
	}
}

type AssertionDescriptor struct {
	Kind       AssertionKind
	Name       string
	Statuses   []int
	Present    bool
	Header     string
	SchemaPath string
	Line       int
}

type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return e.File + ":" + strconv.Itoa(e.Line) + ":" + strconv.Itoa(e.Column) + ": " + e.Message
	}
	return "line " + strconv.Itoa(e.Line) + ": " + e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func joinCodes(codes []int) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ", ")
}
