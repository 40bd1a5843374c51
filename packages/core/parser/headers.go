package parser

import (
	"fmt"
	"mime"
	"net/http"
	"net/textproto"
	"net/url"
	"regexp"
	"strings"
)

var (
	headerNameRe   = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
	languageTagRe  = regexp.MustCompile(`^(\*|[A-Za-z]{1,8}(-[A-Za-z0-9]{1,8})*)$`)
	listTokenRe    = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
	authSchemeRe   = regexp.MustCompile("^[!#$%&'*+\\-.^_`|~0-9A-Za-z]+$")
	knownAuthNames = map[string]string{
		"basic":  "Basic",
		"bearer": "Bearer",
		"digest": "Digest",
	}
)

// headerFormat parses a raw header value and returns its canonical form.
// Formatting is idempotent: feeding the output back yields the same value.
type headerFormat func(value string) (string, error)

var headerFormats = map[string]headerFormat{
	"Content-Type":        formatMediaType,
	"Content-Disposition": formatMediaType,
	"Content-Encoding":    formatTokenList(true),
	"Content-Language":    formatLanguageList,
	"Authorization":       formatAuthorization,
	"User-Agent":          formatUserAgent,
	"Date":                formatDate,
	"Connection":          formatTokenList(true),
	"Host":                formatHost,
}

func validHeaderName(name string) bool {
	return headerNameRe.MatchString(name)
}

func validHeaderValue(value string) bool {
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < 0x20 && c != '\t') || c == 0x7f {
			return false
		}
	}
	return true
}

// FormatHeader validates a header field and returns the value in the form it
// is stored in an envelope. Unknown headers are passed through unchanged.
func FormatHeader(name, value string) (string, error) {
	if !validHeaderName(name) {
		return "", fmt.Errorf("invalid header name %q", name)
	}
	value = strings.TrimSpace(value)
	if !validHeaderValue(value) {
		return "", fmt.Errorf("invalid characters in value of header %s", name)
	}
	format, ok := headerFormats[textproto.CanonicalMIMEHeaderKey(name)]
	if !ok || value == "" {
		return value, nil
	}
	formatted, err := format(value)
	if err != nil {
		return "", fmt.Errorf("header %s: %w", name, err)
	}
	return formatted, nil
}

func formatMediaType(value string) (string, error) {
	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		return "", err
	}
	formatted := mime.FormatMediaType(mediaType, params)
	if formatted == "" {
		return "", fmt.Errorf("cannot format %q", value)
	}
	return formatted, nil
}

func formatTokenList(lower bool) headerFormat {
	return func(value string) (string, error) {
		var tokens []string
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if !listTokenRe.MatchString(part) {
				return "", fmt.Errorf("invalid token %q", part)
			}
			if lower {
				part = strings.ToLower(part)
			}
			tokens = append(tokens, part)
		}
		if len(tokens) == 0 {
			return "", fmt.Errorf("empty list")
		}
		return strings.Join(tokens, ", "), nil
	}
}

func formatLanguageList(value string) (string, error) {
	var tags []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !languageTagRe.MatchString(part) {
			return "", fmt.Errorf("invalid language tag %q", part)
		}
		tags = append(tags, part)
	}
	if len(tags) == 0 {
		return "", fmt.Errorf("empty list")
	}
	return strings.Join(tags, ", "), nil
}

func formatAuthorization(value string) (string, error) {
	fields := strings.Fields(value)
	scheme := fields[0]
	if !authSchemeRe.MatchString(scheme) {
		return "", fmt.Errorf("invalid scheme %q", scheme)
	}
	if canonical, ok := knownAuthNames[strings.ToLower(scheme)]; ok {
		scheme = canonical
	}
	if len(fields) == 1 {
		return scheme, nil
	}
	credentials := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), fields[0]))
	return scheme + " " + credentials, nil
}

func formatUserAgent(value string) (string, error) {
	return strings.Join(strings.Fields(value), " "), nil
}

func formatDate(value string) (string, error) {
	t, err := http.ParseTime(value)
	if err != nil {
		return "", fmt.Errorf("invalid HTTP date %q", value)
	}
	return t.UTC().Format(http.TimeFormat), nil
}

func formatHost(value string) (string, error) {
	u, err := url.Parse("http://" + value)
	if err != nil || u.Host != value || u.Hostname() == "" {
		return "", fmt.Errorf("invalid host %q", value)
	}
	return strings.ToLower(value), nil
}
