package env

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/hitflow/packages/builtin"
	"go.uber.org/zap"
)

var (
	variablePattern = regexp.MustCompile(`\{\{([^}]+)\}\}`)
	exchangePattern = regexp.MustCompile(`^([\w-]+)\.(request|response)\.(body|headers)\.(.+)$`)
	capturePattern  = regexp.MustCompile(`^(request|response)\.(body|headers)\.(.+)$`)
)

// UnresolvedError reports a token that could not be resolved.
type UnresolvedError struct {
	Token  string
	Reason string
}

func (e *UnresolvedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("unresolved variable {{%s}}", e.Token)
	}
	return fmt.Sprintf("unresolved variable {{%s}}: %s", e.Token, e.Reason)
}

// Resolver substitutes {{...}} tokens. Tokens are resolved, in order, as
// dynamic $functions, references to exchanges recorded in the current test
// case and flat variables from the Store.
type Resolver struct {
	mu           sync.RWMutex
	store        *Store
	funcs        *builtin.Registry
	exchanges    map[string]*exchange
	last         *exchange
	queryDefault string
	logger       *zap.Logger
}

type Option func(*Resolver)

func WithStore(store *Store) Option {
	return func(r *Resolver) {
		r.store = store
	}
}

// WithQueryDefault sets the value substituted when an exchange query matches
// nothing.
func WithQueryDefault(value string) Option {
	return func(r *Resolver) {
		r.queryDefault = value
	}
}

func WithBuiltins(funcs *builtin.Registry) Option {
	return func(r *Resolver) {
		r.funcs = funcs
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		store:     NewStore(),
		funcs:     builtin.NewRegistry(),
		exchanges: make(map[string]*exchange),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Resolver) Store() *Store {
	return r.store
}

// BeginTestCase drops test-case variables and recorded exchanges.
func (r *Resolver) BeginTestCase() {
	r.store.Clear(TierTestCase)
	r.mu.Lock()
	r.exchanges = make(map[string]*exchange)
	r.last = nil
	r.mu.Unlock()
}

// Record stores a finished exchange under name so later requests can refer
// to it. An unnamed exchange is only kept as the target of Capture. Bodies
// are read and put back so callers can still consume them.
func (r *Resolver) Record(name string, req *http.Request, resp *http.Response) error {
	ex := &exchange{}
	if req != nil {
		body, err := requestBody(req)
		if err != nil {
			return fmt.Errorf("recording request %s: %w", name, err)
		}
		ex.request = message{header: req.Header.Clone(), body: body}
	}
	if resp != nil {
		var body []byte
		if resp.Body != nil {
			var err error
			body, err = io.ReadAll(resp.Body)
			_ = resp.Body.Close()
			if err != nil {
				return fmt.Errorf("recording response %s: %w", name, err)
			}
			resp.Body = io.NopCloser(bytes.NewReader(body))
		}
		ex.response = message{header: resp.Header.Clone(), body: body}
	}

	r.mu.Lock()
	r.last = ex
	if name != "" {
		r.exchanges[name] = ex
	}
	r.mu.Unlock()
	r.logger.Debug("recorded exchange", zap.String("name", name))
	return nil
}

func requestBody(req *http.Request) ([]byte, error) {
	if req.GetBody != nil {
		rc, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// ResolveLine substitutes every token in line. It fails on the first token
// that cannot be resolved.
func (r *Resolver) ResolveLine(line string) (string, error) {
	var firstErr error
	out := variablePattern.ReplaceAllStringFunc(line, func(match string) string {
		if firstErr != nil {
			return match
		}
		value, err := r.resolveToken(strings.TrimSpace(match[2 : len(match)-2]))
		if err != nil {
			firstErr = err
			return match
		}
		return value
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (r *Resolver) resolveToken(token string) (string, error) {
	if strings.HasPrefix(token, "$") {
		value, ok, err := r.funcs.Call(token[1:])
		if err != nil {
			return "", &UnresolvedError{Token: token, Reason: err.Error()}
		}
		if !ok {
			return "", &UnresolvedError{Token: token, Reason: "unknown dynamic variable"}
		}
		return value, nil
	}

	if m := exchangePattern.FindStringSubmatch(token); m != nil {
		r.mu.RLock()
		ex, ok := r.exchanges[m[1]]
		r.mu.RUnlock()
		if ok {
			return r.queryExchange(token, ex, m[2], m[3], m[4])
		}
		if value, _, found := r.store.Lookup(token); found {
			return value, nil
		}
		return "", &UnresolvedError{Token: token, Reason: fmt.Sprintf("no request named %q has run in this test case", m[1])}
	}

	if value, _, ok := r.store.Lookup(token); ok {
		return value, nil
	}
	return "", &UnresolvedError{Token: token}
}

func (r *Resolver) queryExchange(token string, ex *exchange, part, section, query string) (string, error) {
	msg := ex.part(part)
	if section == "headers" {
		if v := msg.header.Get(query); v != "" {
			return v, nil
		}
		return r.queryDefault, nil
	}
	value, ok, err := queryBody(msg, query)
	if err != nil {
		return "", &UnresolvedError{Token: token, Reason: err.Error()}
	}
	if !ok {
		return r.queryDefault, nil
	}
	return value, nil
}

// Capture evaluates query, for example "response.body.$.token", against the
// most recently recorded exchange and stores the value as a test-case
// variable. A query that matches nothing stores the query default.
func (r *Resolver) Capture(variable, query string) error {
	m := capturePattern.FindStringSubmatch(query)
	if m == nil {
		return fmt.Errorf("capture %s: invalid query %q", variable, query)
	}
	r.mu.RLock()
	ex := r.last
	r.mu.RUnlock()
	if ex == nil {
		return fmt.Errorf("capture %s: no exchange recorded in this test case", variable)
	}
	value, err := r.queryExchange(query, ex, m[1], m[2], m[3])
	if err != nil {
		return fmt.Errorf("capture %s: %w", variable, err)
	}
	r.store.Set(TierTestCase, variable, value)
	r.logger.Debug("captured variable", zap.String("name", variable))
	return nil
}
