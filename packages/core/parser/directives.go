package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DirectiveAuthProvider     = "AUTH-PROVIDER"
	DirectiveRetryStrategy    = "RETRY-STRATEGY"
	DirectiveRetryUntilStatus = "RETRY-UNTIL-STATUS"
	DirectiveRetryMaxAttempts = "RETRY-MAX-ATTEMPTS"
	DirectiveRetryBackoffType = "RETRY-BACKOFF-TYPE"
	DirectiveRetryMaxDelay    = "RETRY-MAX-DELAY"
	DirectiveRetryDelay       = "RETRY-DELAY"
	DirectiveRetryJitter      = "RETRY-JITTER"
	DirectiveExpectStatus     = "TEST-EXPECT-STATUS"
	DirectiveHasBody          = "TEST-HAS-BODY"
	DirectiveHasHeader        = "TEST-HAS-HEADER"
	DirectiveBodySchema       = "TEST-BODY-SCHEMA"
)

// DirectiveDescriptor describes one "## NAME: params" line form.
type DirectiveDescriptor struct {
	Name    string
	Pattern *regexp.Regexp
	Groups  []string
}

// Match applies the descriptor pattern to a full directive line and returns
// the named capture groups.
func (d *DirectiveDescriptor) Match(line string) (map[string]string, bool) {
	m := d.Pattern.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return nil, false
	}
	captures := make(map[string]string, len(d.Groups))
	for i, name := range d.Pattern.SubexpNames() {
		if name != "" {
			captures[name] = m[i]
		}
	}
	return captures, true
}

func newDirective(name, params string) *DirectiveDescriptor {
	return compileDirective(name, `^##\s*(?i:`+regexp.QuoteMeta(name)+`)\s*:\s*`+params+`\s*$`)
}

// newFlagDirective builds a directive whose parameter list may be omitted
// together with the colon.
func newFlagDirective(name, params string) *DirectiveDescriptor {
	return compileDirective(name, `^##\s*(?i:`+regexp.QuoteMeta(name)+`)\s*(?::\s*`+params+`)?\s*$`)
}

func compileDirective(name, expr string) *DirectiveDescriptor {
	pattern := regexp.MustCompile(expr)
	var groups []string
	for _, g := range pattern.SubexpNames() {
		if g != "" {
			groups = append(groups, g)
		}
	}
	return &DirectiveDescriptor{Name: name, Pattern: pattern, Groups: groups}
}

const (
	identParam    = `(?P<name>[A-Za-z0-9_.:\-]+)`
	codeListParam = `\[(?P<codes>\s*\d{3}(?:\s*,\s*\d{3})*\s*)\]`
	durationParam = `(?P<duration>\d{1,2}:\d{2}:\d{2}(?:\.\d{1,7})?)`
	boolParam     = `\[?\s*(?P<value>(?i:true|false))?\s*\]?`
)

var directiveTable = []*DirectiveDescriptor{
	newDirective(DirectiveAuthProvider, identParam),
	newDirective(DirectiveRetryStrategy, identParam),
	newDirective(DirectiveRetryUntilStatus, codeListParam),
	newDirective(DirectiveRetryMaxAttempts, `(?P<attempts>\d+)`),
	newDirective(DirectiveRetryBackoffType, `(?P<kind>[A-Za-z]+)`),
	newDirective(DirectiveRetryMaxDelay, durationParam),
	newDirective(DirectiveRetryDelay, durationParam),
	newFlagDirective(DirectiveRetryJitter, boolParam),
	newDirective(DirectiveExpectStatus, codeListParam),
	newFlagDirective(DirectiveHasBody, boolParam),
	newDirective(DirectiveHasHeader, "(?P<header>[!#$%&'*+\\-.^_`|~0-9A-Za-z]+)"),
	newDirective(DirectiveBodySchema, `(?P<path>\S+)`),
}

var directiveIndex = func() map[string]*DirectiveDescriptor {
	idx := make(map[string]*DirectiveDescriptor, len(directiveTable))
	for _, d := range directiveTable {
		idx[d.Name] = d
	}
	return idx
}()

// Directives returns the recognised directives sorted by name.
func Directives() []*DirectiveDescriptor {
	out := make([]*DirectiveDescriptor, len(directiveTable))
	copy(out, directiveTable)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func LookupDirective(name string) (*DirectiveDescriptor, bool) {
	d, ok := directiveIndex[strings.ToUpper(strings.TrimSpace(name))]
	return d, ok
}

var directiveNameRe = regexp.MustCompile(`^##\s*([A-Za-z][A-Za-z0-9-]*)\s*(?::|$)`)

type directiveHandler func(acc *accumulator, captures map[string]string) error

var directiveHandlers = map[string]directiveHandler{
	DirectiveAuthProvider: func(acc *accumulator, c map[string]string) error {
		acc.directives.AuthProvider = c["name"]
		return nil
	},
	DirectiveRetryStrategy: func(acc *accumulator, c map[string]string) error {
		acc.directives.RetryStrategy = c["name"]
		return nil
	},
	DirectiveRetryUntilStatus: func(acc *accumulator, c map[string]string) error {
		codes, err := parseStatusList(c["codes"])
		if err != nil {
			return err
		}
		acc.directives.RetryUntilStatus = codes
		return nil
	},
	DirectiveRetryMaxAttempts: func(acc *accumulator, c map[string]string) error {
		n, err := strconv.Atoi(c["attempts"])
		if err != nil {
			return fmt.Errorf("invalid attempt count %q", c["attempts"])
		}
		acc.overrides().MaxAttempts = &n
		return nil
	},
	DirectiveRetryBackoffType: func(acc *accumulator, c map[string]string) error {
		kind := strings.ToLower(c["kind"])
		switch kind {
		case "constant", "linear", "exponential":
		default:
			return fmt.Errorf("unknown backoff type %q (expected constant, linear or exponential)", c["kind"])
		}
		acc.overrides().Backoff = kind
		return nil
	},
	DirectiveRetryMaxDelay: func(acc *accumulator, c map[string]string) error {
		d, err := ParseClockDuration(c["duration"])
		if err != nil {
			return err
		}
		acc.overrides().MaxDelay = &d
		return nil
	},
	DirectiveRetryDelay: func(acc *accumulator, c map[string]string) error {
		d, err := ParseClockDuration(c["duration"])
		if err != nil {
			return err
		}
		acc.overrides().BaseDelay = &d
		return nil
	},
	DirectiveRetryJitter: func(acc *accumulator, c map[string]string) error {
		v := parseFlag(c["value"])
		acc.overrides().Jitter = &v
		return nil
	},
	DirectiveExpectStatus: func(acc *accumulator, c map[string]string) error {
		codes, err := parseStatusList(c["codes"])
		if err != nil {
			return err
		}
		name := "Status code is " + joinCodes(codes)
		if len(codes) > 1 {
			name = "Status code is one of " + joinCodes(codes)
		}
		acc.schedule(&AssertionDescriptor{Kind: AssertStatus, Name: name, Statuses: codes})
		return nil
	},
	DirectiveHasBody: func(acc *accumulator, c map[string]string) error {
		present := parseFlag(c["value"])
		name := "Response has a body"
		if !present {
			name = "Response has no body"
		}
		acc.schedule(&AssertionDescriptor{Kind: AssertHasBody, Name: name, Present: present})
		return nil
	},
	DirectiveHasHeader: func(acc *accumulator, c map[string]string) error {
		header := c["header"]
		acc.schedule(&AssertionDescriptor{Kind: AssertHasHeader, Name: "Response has header " + header, Header: header})
		return nil
	},
	DirectiveBodySchema: func(acc *accumulator, c map[string]string) error {
		path := c["path"]
		acc.schedule(&AssertionDescriptor{Kind: AssertBodySchema, Name: "Response body matches schema " + path, SchemaPath: path})
		return nil
	},
}

// parseFlag treats an absent value as true.
func parseFlag(v string) bool {
	return v == "" || strings.EqualFold(v, "true")
}

func parseStatusList(raw string) ([]int, error) {
	var codes []int
	seen := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		code, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid status code %q", part)
		}
		if code < 100 || code > 599 {
			return nil, fmt.Errorf("status code %d out of range", code)
		}
		if !seen[code] {
			seen[code] = true
			codes = append(codes, code)
		}
	}
	return codes, nil
}

var clockDurationRe = regexp.MustCompile(`^(\d{1,2}):(\d{2}):(\d{2})(?:\.(\d{1,7}))?$`)

// ParseClockDuration parses hh:mm:ss[.fff] into a time.Duration.
func ParseClockDuration(s string) (time.Duration, error) {
	m := clockDurationRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, fmt.Errorf("invalid duration %q (expected hh:mm:ss[.fff])", s)
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	if minutes > 59 || seconds > 59 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	d := time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
	if frac := m[4]; frac != "" {
		frac += strings.Repeat("0", 9-len(frac))
		ns, _ := strconv.Atoi(frac)
		d += time.Duration(ns)
	}
	return d, nil
}

// FormatClockDuration is the inverse of ParseClockDuration.
func FormatClockDuration(d time.Duration) string {
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	d -= s * time.Second
	out := fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	if d > 0 {
		out += "." + strings.TrimRight(fmt.Sprintf("%09d", d.Nanoseconds()), "0")
	}
	return out
}
