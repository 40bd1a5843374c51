package parser

import (
	"strings"
)

type HeaderField struct {
	Name  string
	Value string
}

// Headers is an ordered multimap of header fields. Lookups ignore case,
// iteration keeps insertion order and the spelling used when a field was added.
type Headers struct {
	fields []HeaderField
}

func NewHeaders(fields ...HeaderField) Headers {
	h := Headers{}
	for _, f := range fields {
		h.Add(f.Name, f.Value)
	}
	return h
}

func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

func (h Headers) Get(name string) string {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value
		}
	}
	return ""
}

func (h Headers) Values(name string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			values = append(values, f.Value)
		}
	}
	return values
}

func (h Headers) Has(name string) bool {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

func (h Headers) Len() int {
	return len(h.fields)
}

func (h Headers) Fields() []HeaderField {
	out := make([]HeaderField, len(h.fields))
	copy(out, h.fields)
	return out
}

func (h Headers) Clone() Headers {
	return Headers{fields: h.Fields()}
}

// Equal reports whether both multimaps hold the same fields in the same order.
// Names are compared without regard to case.
func (h Headers) Equal(other Headers) bool {
	if len(h.fields) != len(other.fields) {
		return false
	}
	for i, f := range h.fields {
		o := other.fields[i]
		if !strings.EqualFold(f.Name, o.Name) || f.Value != o.Value {
			return false
		}
	}
	return true
}

// Envelope is the immutable result of parsing a request block.
type Envelope struct {
	method  string
	uri     string
	headers Headers
	body    string
}

func NewEnvelope(method, uri string, headers Headers, body string) *Envelope {
	return &Envelope{
		method:  method,
		uri:     uri,
		headers: headers.Clone(),
		body:    body,
	}
}

func (e *Envelope) Method() string {
	return e.method
}

func (e *Envelope) URI() string {
	return e.uri
}

// Headers returns a copy; mutating it does not affect the envelope.
func (e *Envelope) Headers() Headers {
	return e.headers.Clone()
}

func (e *Envelope) Body() string {
	return e.body
}

func (e *Envelope) Equal(other *Envelope) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.method == other.method &&
		e.uri == other.uri &&
		e.body == other.body &&
		e.headers.Equal(other.headers)
}

// Render writes the envelope back in request-file form.
func (e *Envelope) Render() string {
	var b strings.Builder
	b.WriteString(e.method)
	b.WriteString(" ")
	b.WriteString(e.uri)
	b.WriteString("\n")
	for _, f := range e.headers.fields {
		b.WriteString(f.Name)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("\n")
	}
	if e.body != "" {
		b.WriteString("\n")
		b.WriteString(e.body)
		b.WriteString("\n")
	}
	return b.String()
}
