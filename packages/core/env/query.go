package env

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/tidwall/gjson"
)

// message is the recorded half of an exchange a token can query.
type message struct {
	header http.Header
	body   []byte
}

type exchange struct {
	request  message
	response message
}

func (e *exchange) part(name string) message {
	if name == "request" {
		return e.request
	}
	return e.response
}

// queryBody evaluates query against body according to its content type.
// The second result is false when nothing matched.
func queryBody(m message, query string) (string, bool, error) {
	if query == "*" {
		return string(m.body), len(m.body) > 0, nil
	}
	if len(bytes.TrimSpace(m.body)) == 0 {
		return "", false, nil
	}
	mediaType, _, err := mime.ParseMediaType(m.header.Get("Content-Type"))
	if err != nil {
		mediaType = sniffMediaType(m.body)
	}
	switch {
	case isJSON(mediaType):
		return queryJSON(m.body, query)
	case isXML(mediaType):
		return queryXML(m.body, query)
	default:
		return "", false, fmt.Errorf("cannot query body of type %q", mediaType)
	}
}

func isJSON(mediaType string) bool {
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func isXML(mediaType string) bool {
	return mediaType == "text/xml" || mediaType == "application/xml" || strings.HasSuffix(mediaType, "+xml")
}

func sniffMediaType(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '['):
		return "application/json"
	case len(trimmed) > 0 && trimmed[0] == '<':
		return "application/xml"
	default:
		return "text/plain"
	}
}

// queryJSON accepts JSONPath-style queries ("$.items[0].id",
// "$['a-b'].c", "$.items[*].id") as well as plain gjson paths.
func queryJSON(body []byte, query string) (string, bool, error) {
	path, err := gjsonPath(query)
	if err != nil {
		return "", false, err
	}
	if path == "" {
		return string(body), true, nil
	}
	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return "", false, nil
	}
	if result.Type == gjson.JSON {
		return result.Raw, true, nil
	}
	return result.String(), true, nil
}

// gjsonPath rewrites the bracket forms of JSONPath into gjson syntax: [n]
// becomes .n, [*] becomes .# and quoted keys are escaped. Queries without
// brackets are passed through so gjson modifiers keep working.
func gjsonPath(query string) (string, error) {
	q := strings.TrimPrefix(strings.TrimPrefix(query, "$"), ".")
	if !strings.Contains(q, "[") {
		return q, nil
	}

	var parts []string
	for q != "" {
		switch q[0] {
		case '.':
			q = q[1:]
		case '[':
			seg, rest, err := bracketSegment(q)
			if err != nil {
				return "", fmt.Errorf("invalid JSON path %q: %w", query, err)
			}
			parts = append(parts, seg)
			q = rest
		default:
			end := strings.IndexAny(q, ".[")
			if end < 0 {
				end = len(q)
			}
			seg := q[:end]
			if seg == "*" {
				seg = "#"
			}
			parts = append(parts, seg)
			q = q[end:]
		}
	}
	return strings.Join(parts, "."), nil
}

// bracketSegment consumes one [..] selector at the start of q.
func bracketSegment(q string) (string, string, error) {
	if len(q) > 1 && (q[1] == '\'' || q[1] == '"') {
		quote := q[1]
		var key strings.Builder
		for i := 2; i < len(q); i++ {
			switch c := q[i]; {
			case c == '\\' && i+1 < len(q):
				i++
				key.WriteByte(q[i])
			case c == quote:
				if i+1 >= len(q) || q[i+1] != ']' {
					return "", "", fmt.Errorf("expected ] after quoted key")
				}
				return escapeGJSON(key.String()), q[i+2:], nil
			default:
				key.WriteByte(c)
			}
		}
		return "", "", fmt.Errorf("unterminated quoted key")
	}

	end := strings.IndexByte(q, ']')
	if end < 0 {
		return "", "", fmt.Errorf("missing ]")
	}
	sel := strings.TrimSpace(q[1:end])
	switch {
	case sel == "*":
		return "#", q[end+1:], nil
	case sel != "" && strings.Trim(sel, "0123456789") == "":
		return sel, q[end+1:], nil
	default:
		return "", "", fmt.Errorf("unsupported selector [%s]", sel)
	}
}

// escapeGJSON escapes the characters gjson treats as path syntax.
func escapeGJSON(key string) string {
	var b strings.Builder
	for i := 0; i < len(key); i++ {
		if strings.IndexByte(`\.*?|#@!=<>%()`, key[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(key[i])
	}
	return b.String()
}

func queryXML(body []byte, query string) (string, bool, error) {
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("parsing XML body: %w", err)
	}
	node, err := xmlquery.Query(doc, query)
	if err != nil {
		return "", false, fmt.Errorf("invalid XPath %q: %w", query, err)
	}
	if node == nil {
		return "", false, nil
	}
	return node.InnerText(), true, nil
}
