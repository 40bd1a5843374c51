package parser

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseOne(t *testing.T, text string, opts ...Option) *Block {
	t.Helper()
	block, err := ParseBlock(RawBlock{Text: text, Line: 1}, opts...)
	require.NoError(t, err)
	return block
}

func TestParseBlock_SimpleGET(t *testing.T) {
	block := parseOne(t, "GET https://x/y\nAccept: application/json")

	env := block.Envelope
	assert.Equal(t, "GET", env.Method())
	assert.Equal(t, "https://x/y", env.URI())
	assert.Equal(t, "application/json", env.Headers().Get("accept"))
	assert.Equal(t, 1, env.Headers().Len())
	assert.Empty(t, env.Body())
}

func TestParseBlock_BodyAfterBlankLine(t *testing.T) {
	block := parseOne(t, `post https://api.example.com/users HTTP/1.1
Content-Type: application/json;  charset=UTF-8

{
  "name": "John"
}

`)

	env := block.Envelope
	assert.Equal(t, "POST", env.Method())
	assert.Equal(t, "https://api.example.com/users", env.URI())
	assert.Equal(t, "application/json; charset=UTF-8", env.Headers().Get("Content-Type"))
	assert.Equal(t, "{\n  \"name\": \"John\"\n}", env.Body())
}

func TestParseBlock_BodyKeepsHashLines(t *testing.T) {
	block := parseOne(t, "POST https://x/y\n\n# not a comment\n## not a directive")
	assert.Equal(t, "# not a comment\n## not a directive", block.Envelope.Body())
}

func TestParseBlock_NameComment(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"hash", "# @name login\nGET https://x/login", "login"},
		{"slashes", "// @name get-user\nGET https://x/users/1", "get-user"},
		{"plain comment", "# fetch things\nGET https://x/things", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := parseOne(t, tt.text)
			assert.Equal(t, tt.want, block.Name)
		})
	}
}

func TestParseBlock_Directives(t *testing.T) {
	block := parseOne(t, `## AUTH-PROVIDER: admin
## RETRY-STRATEGY: aggressive
## RETRY-UNTIL-STATUS: [200, 201]
## RETRY-MAX-ATTEMPTS: 5
## RETRY-BACKOFF-TYPE: Exponential
## RETRY-MAX-DELAY: 00:00:30
## RETRY-DELAY: 00:00:00.250
## RETRY-JITTER: true
GET https://x/y`)

	d := block.Directives
	assert.Equal(t, "admin", d.AuthProvider)
	assert.Equal(t, "aggressive", d.RetryStrategy)
	assert.Equal(t, []int{200, 201}, d.RetryUntilStatus)
	require.NotNil(t, d.RetryOverrides)
	require.NotNil(t, d.RetryOverrides.MaxAttempts)
	assert.Equal(t, 5, *d.RetryOverrides.MaxAttempts)
	assert.Equal(t, "exponential", d.RetryOverrides.Backoff)
	assert.Equal(t, 30*time.Second, *d.RetryOverrides.MaxDelay)
	assert.Equal(t, 250*time.Millisecond, *d.RetryOverrides.BaseDelay)
	assert.True(t, *d.RetryOverrides.Jitter)
}

func TestParseBlock_DirectiveOrderIndependent(t *testing.T) {
	a := parseOne(t, "## RETRY-STRATEGY: first\n## AUTH-PROVIDER: admin\n## RETRY-STRATEGY: second\nGET https://x/y")
	b := parseOne(t, "## AUTH-PROVIDER: admin\n## RETRY-STRATEGY: second\nGET https://x/y")

	assert.Equal(t, "second", a.Directives.RetryStrategy)
	assert.Equal(t, a.Directives, b.Directives)
}

func TestParseBlock_Assertions(t *testing.T) {
	block := parseOne(t, `## TEST-EXPECT-STATUS: [200]
## TEST-EXPECT-STATUS: [200, 204]
## TEST-HAS-BODY
## TEST-HAS-BODY: [false]
## TEST-HAS-HEADER: X-Request-Id
## TEST-BODY-SCHEMA: schemas/user.json
GET https://x/y`)

	got := block.Directives.Assertions
	require.Len(t, got, 6)
	assert.Equal(t, AssertStatus, got[0].Kind)
	assert.Equal(t, "Status code is 200", got[0].Name)
	assert.Equal(t, "Status code is one of 200, 204", got[1].Name)
	assert.Equal(t, AssertHasBody, got[2].Kind)
	assert.True(t, got[2].Present)
	assert.False(t, got[3].Present)
	assert.Equal(t, "X-Request-Id", got[4].Header)
	assert.Equal(t, "schemas/user.json", got[5].SchemaPath)
	assert.Equal(t, 3, got[2].Line)
}

func TestParseBlock_Errors(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		line    int
		message string
	}{
		{"unknown directive", "## RETRY-FOREVER: yes\nGET https://x", 1, "unknown directive"},
		{"bad params", "## RETRY-MAX-ATTEMPTS: many\nGET https://x", 1, "invalid parameters"},
		{"bad status", "## TEST-EXPECT-STATUS: [700]\nGET https://x", 1, "out of range"},
		{"bad backoff", "## RETRY-BACKOFF-TYPE: fibonacci\nGET https://x", 1, "unknown backoff type"},
		{"directive after request line", "GET https://x\n## RETRY-STRATEGY: default", 2, "before the request line"},
		{"unsupported method", "FETCH https://x", 1, "unsupported method"},
		{"missing uri", "GET", 1, "missing URI"},
		{"malformed header", "GET https://x\nno colon here", 2, "malformed header"},
		{"invalid header name", "GET https://x\nBad Name: v", 2, "invalid header name"},
		{"invalid date", "GET https://x\nDate: yesterday", 2, "invalid HTTP date"},
		{"no request line", "## RETRY-STRATEGY: default", 1, "missing request line"},
		{"dotted name", "# @name login.v2\nGET https://x", 1, "invalid request name"},
		{"malformed capture", "# @capture token response.body.$.token\nGET https://x", 1, "malformed @capture"},
		{"capture without source", "GET https://x\n# @capture token = body.token", 2, "malformed @capture"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBlock(RawBlock{Text: tt.text, Line: 1}, WithFilename("t.http"))
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, "t.http", perr.File)
			assert.Equal(t, tt.line, perr.Line)
			assert.Contains(t, perr.Message, tt.message)
		})
	}
}

func TestParseBlock_DefaultHeaders(t *testing.T) {
	block := parseOne(t, "GET https://x\naccept: text/plain",
		WithDefaultHeaders(map[string]string{
			"Accept":     "application/json",
			"User-Agent": "hitflow/1.0",
		}))

	h := block.Envelope.Headers()
	assert.Equal(t, []string{"text/plain"}, h.Values("Accept"))
	assert.Equal(t, "hitflow/1.0", h.Get("User-Agent"))
}

func TestParseBlock_LineTransform(t *testing.T) {
	transform := func(line string) (string, error) {
		if line == "GET {{base}}/users" {
			return "GET https://x/users", nil
		}
		return line, nil
	}
	block := parseOne(t, "GET {{base}}/users", WithLineTransform(transform))
	assert.Equal(t, "https://x/users", block.Envelope.URI())

	boom := errors.New("unresolved")
	_, err := ParseBlock(RawBlock{Text: "GET {{x}}", Line: 4}, WithLineTransform(func(string) (string, error) {
		return "", boom
	}))
	require.ErrorIs(t, err, boom)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 4, perr.Line)
}

func TestParseBlock_LineTransformSkipsComments(t *testing.T) {
	var seen []string
	transform := func(line string) (string, error) {
		if strings.Contains(line, "{{later}}") {
			return "", errors.New("unresolved variable later")
		}
		seen = append(seen, line)
		return strings.ReplaceAll(line, "{{base}}", "https://x"), nil
	}
	block := parseOne(t, `# see {{later}} for the token
// {{later}} too
## AUTH-PROVIDER: admin
GET {{base}}/users
X-Base: {{base}}`, WithLineTransform(transform))

	assert.Equal(t, "https://x/users", block.Envelope.URI())
	assert.Equal(t, "https://x", block.Envelope.Headers().Get("X-Base"))
	assert.Equal(t, []string{"## AUTH-PROVIDER: admin", "GET {{base}}/users", "X-Base: {{base}}"}, seen)
}

func TestParseBlock_Captures(t *testing.T) {
	block := parseOne(t, `# @capture token = response.body.$.token
// @capture  request-id=response.headers.X-Request-Id
GET https://x/login
# @capture first = response.body.$.items[0].id`)

	assert.Empty(t, block.Name)
	assert.Equal(t, []Capture{
		{Variable: "token", Query: "response.body.$.token", Line: 1},
		{Variable: "request-id", Query: "response.headers.X-Request-Id", Line: 2},
		{Variable: "first", Query: "response.body.$.items[0].id", Line: 4},
	}, block.Captures)
}

func TestHeaderFormatting(t *testing.T) {
	tests := []struct {
		name, header, value, want string
	}{
		{"content type", "Content-Type", "Text/HTML; Charset=utf-8", "text/html; charset=utf-8"},
		{"disposition", "Content-Disposition", `attachment; filename="a b.txt"`, `attachment; filename="a b.txt"`},
		{"encoding", "Content-Encoding", "GZIP ,br", "gzip, br"},
		{"language", "Content-Language", "en-US,  fr", "en-US, fr"},
		{"connection", "Connection", "Keep-Alive", "keep-alive"},
		{"bearer", "Authorization", "bearer   abc.def", "Bearer abc.def"},
		{"custom scheme", "Authorization", "Token xyz", "Token xyz"},
		{"user agent", "User-Agent", "curl/8.0   (linux)", "curl/8.0 (linux)"},
		{"date", "Date", "Sun, 06 Nov 1994 08:49:37 GMT", "Sun, 06 Nov 1994 08:49:37 GMT"},
		{"host", "Host", "Example.com:8080", "example.com:8080"},
		{"passthrough", "X-Custom", "  Anything Goes ", "Anything Goes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FormatHeader(tt.header, tt.value)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			again, err := FormatHeader(tt.header, got)
			require.NoError(t, err)
			assert.Equal(t, got, again)
		})
	}
}

func TestEnvelope_RenderRoundTrip(t *testing.T) {
	inputs := []string{
		"GET https://x/y\nAccept: application/json",
		"POST https://x/users\nContent-Type: application/json\nX-Trace: a\nX-Trace: b\n\n{\"a\": 1}",
		"DELETE https://x/users/1",
	}
	for _, in := range inputs {
		first := parseOne(t, in)
		second := parseOne(t, first.Envelope.Render())
		assert.True(t, first.Envelope.Equal(second.Envelope), "round trip of %q", in)
	}
}

func TestEnvelope_HeadersAreCopies(t *testing.T) {
	block := parseOne(t, "GET https://x\nAccept: text/plain")
	h := block.Envelope.Headers()
	h.Add("Accept", "changed")
	h.Add("X-New", "1")

	assert.Equal(t, []string{"text/plain"}, block.Envelope.Headers().Values("Accept"))
	assert.False(t, block.Envelope.Headers().Has("X-New"))
}

func TestHeaders_Multimap(t *testing.T) {
	h := NewHeaders(HeaderField{"Accept", "a"}, HeaderField{"X-Id", "1"}, HeaderField{"accept", "b"})
	assert.Equal(t, []string{"a", "b"}, h.Values("ACCEPT"))

	assert.Equal(t, []HeaderField{{"Accept", "a"}, {"X-Id", "1"}, {"accept", "b"}}, h.Fields())
	assert.Equal(t, 3, h.Len())
	assert.True(t, h.Has("x-id"))
	assert.Equal(t, "a", h.Get("accept"))
}

func TestSplitBlocks(t *testing.T) {
	content := "# collection header comment\n\n### Login\n# @name login\nPOST https://x/login\n\n{}\n###\n\nGET https://x/me\n### trailing\n// nothing here\n"
	blocks := SplitBlocks(content)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Login", blocks[0].Title)
	assert.Equal(t, 4, blocks[0].Line)
	assert.Equal(t, "", blocks[1].Title)
	assert.Equal(t, 9, blocks[1].Line)
}

func TestParse_ReportsFileLines(t *testing.T) {
	content := "### one\nGET https://x/1\n\n### two\nGET https://x/2\nBad Header\n"
	_, err := Parse(content, "api.http")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 6, perr.Line)
	assert.Equal(t, "api.http:6:1: malformed header \"Bad Header\"", perr.Error())
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.http")
	require.NoError(t, os.WriteFile(path, []byte("### List\nGET https://x/users\n\n### Get\n# @name get\nGET https://x/users/1\n"), 0644))

	file, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, file.Path)
	require.Len(t, file.Blocks, 2)
	assert.Equal(t, "List", file.Blocks[0].DisplayName())
	assert.Equal(t, "get", file.Blocks[1].DisplayName())
}

func TestClockDuration(t *testing.T) {
	d, err := ParseClockDuration("01:02:03.5")
	require.NoError(t, err)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second+500*time.Millisecond, d)
	assert.Equal(t, "01:02:03.5", FormatClockDuration(d))

	_, err = ParseClockDuration("00:61:00")
	assert.Error(t, err)
	_, err = ParseClockDuration("5s")
	assert.Error(t, err)
}

func TestDirectives_Table(t *testing.T) {
	names := make([]string, 0)
	for _, d := range Directives() {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, DirectiveRetryUntilStatus)
	assert.IsIncreasing(t, names)

	d, ok := LookupDirective("test-has-header")
	require.True(t, ok)
	captures, ok := d.Match("## TEST-HAS-HEADER: ETag")
	require.True(t, ok)
	assert.Equal(t, "ETag", captures["header"])
	assert.Equal(t, []string{"header"}, d.Groups)
}
