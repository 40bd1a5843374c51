package runner

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/hitflow/packages/auth"
	"github.com/abdul-hamid-achik/hitflow/packages/core/env"
	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
	"github.com/abdul-hamid-achik/hitflow/packages/history"
	"github.com/abdul-hamid-achik/hitflow/packages/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReporter struct {
	calls   int
	summary *Summary
}

func (r *countingReporter) Report(s *Summary) error {
	r.calls++
	r.summary = s
	return nil
}

func writeHTTPFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.http")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// fastPolicies replaces the default strategy with one that waits a
// millisecond between attempts.
func fastPolicies(t *testing.T) *resilience.Resolver {
	t.Helper()
	registry := resilience.NewRegistry()
	fast := resilience.DefaultStrategySpec()
	fast.BaseDelay = time.Millisecond
	require.NoError(t, registry.Register(fast))
	return resilience.NewResolver(registry)
}

func TestNewRunner(t *testing.T) {
	r := NewRunner(nil)
	require.NotNil(t, r)
	assert.NotNil(t, r.config.Client)
	assert.NotNil(t, r.config.Variables)
	assert.NotNil(t, r.config.Policies)
	assert.NotNil(t, r.config.Auth)
	assert.NotNil(t, r.config.Logger)
}

func TestRunner_SimpleGet(t *testing.T) {
	var accept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	path := writeHTTPFile(t, `### Fetch
GET `+server.URL+`/y
Accept: application/json
`)
	reporter := &countingReporter{}
	summary, status := NewRunner(&Config{Reporter: reporter}).Run(context.Background(), path)

	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, "application/json", accept)
	assert.Equal(t, 1, reporter.calls)
	assert.Same(t, summary, reporter.summary)
	require.Len(t, summary.Results, 1)

	result := summary.Results[0]
	assert.True(t, result.Passed)
	assert.Equal(t, "Fetch", result.Name)
	assert.Equal(t, "GET", result.Method)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "none", result.Policy)
	assert.Equal(t, []string{path}, summary.Files)
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, int64(1), summary.Latency.Count)
}

func TestRunner_RetryUntilStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	path := writeHTTPFile(t, `###
## RETRY-UNTIL-STATUS: [200]
## TEST-EXPECT-STATUS: [200]
GET `+server.URL+`
`)
	summary, status := NewRunner(&Config{Policies: fastPolicies(t)}).Run(context.Background(), path)

	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 3, summary.Results[0].Attempts)
	assert.Equal(t, 200, summary.Results[0].StatusCode)
	assert.True(t, summary.Results[0].Passed)
}

func TestRunner_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	path := writeHTTPFile(t, `###
## RETRY-STRATEGY: default
## RETRY-MAX-ATTEMPTS: 2
## TEST-EXPECT-STATUS: [200]
GET `+server.URL+`
`)
	summary, status := NewRunner(&Config{Policies: fastPolicies(t)}).Run(context.Background(), path)

	// the last 502 is returned and judged by the assertions
	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, summary.Results, 1)
	assert.Equal(t, 3, summary.Results[0].Attempts)
	assert.Equal(t, 502, summary.Results[0].StatusCode)
	assert.False(t, summary.Results[0].Passed)
	assert.Empty(t, summary.Failures)
}

func TestRunner_TransportErrorFaults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	path := writeHTTPFile(t, `###
GET `+url+`

###
GET `+url+`/never
`)
	reporter := &countingReporter{}
	summary, status := NewRunner(&Config{Reporter: reporter}).Run(context.Background(), path)

	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 1, reporter.calls)
	require.Len(t, summary.Failures, 1)
	assert.IsType(t, &ExecuteStep{}, summary.Failures[0].Step)
	require.Len(t, summary.Results, 1)
	assert.Error(t, summary.Results[0].Error)
}

func TestRunner_CrossRequestVariables(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/login":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"token": "abc123"}`))
		case "/orders":
			authorization = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer server.Close()

	path := writeHTTPFile(t, `###
# @name login
POST `+server.URL+`/login
Content-Type: application/json

{"user": "{{user}}"}

###
GET `+server.URL+`/orders
Authorization: bearer {{login.response.body.$.token}}
`)
	runner := NewRunner(nil)
	runner.config.Variables.Store().Set(env.TierGlobal, "user", "ada")
	summary, status := runner.Run(context.Background(), path)

	require.Equal(t, StatusSuccess, status, "%v", summary.Failures)
	assert.Equal(t, "Bearer abc123", authorization)
	assert.Equal(t, 2, summary.Passed)
}

func TestRunner_CaptureFeedsLaterBlocks(t *testing.T) {
	var token, requestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session":
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Request-Id", "req-7")
			_, _ = w.Write([]byte(`{"session": {"token": "abc123"}}`))
		case "/profile":
			token = r.Header.Get("X-Token")
			requestID = r.URL.Query().Get("trace")
		}
	}))
	defer server.Close()

	path := writeHTTPFile(t, `###
# token is read from {{token}} below once this call returns
# @capture token = response.body.$.session.token
# @capture trace = response.headers.X-Request-Id
POST `+server.URL+`/session

###
GET `+server.URL+`/profile?trace={{trace}}
X-Token: {{token}}
`)
	summary, status := NewRunner(nil).Run(context.Background(), path)

	require.Equal(t, StatusSuccess, status, "%v", summary.Failures)
	assert.Equal(t, "abc123", token)
	assert.Equal(t, "req-7", requestID)
	assert.Equal(t, 2, summary.Passed)
}

func TestRunner_UnresolvedVariableIsParseFault(t *testing.T) {
	path := writeHTTPFile(t, `###
GET https://example.invalid/{{missing}}
`)
	reporter := &countingReporter{}
	summary, status := NewRunner(&Config{Reporter: reporter}).Run(context.Background(), path)

	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 1, reporter.calls)
	require.Len(t, summary.Failures, 1)
	assert.IsType(t, &ParseStep{}, summary.Failures[0].Step)

	var parseErr *parser.ParseError
	assert.True(t, errors.As(summary.Failures[0].Err, &parseErr))
}

func TestRunner_AssertionFailureAndBail(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	content := `###
## TEST-EXPECT-STATUS: [200]
GET ` + server.URL + `/a

###
GET ` + server.URL + `/b
`
	t.Run("without bail", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		summary, status := NewRunner(nil).Run(context.Background(), writeHTTPFile(t, content))
		assert.Equal(t, StatusFailure, status)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
		assert.Equal(t, 2, summary.Failed)
		require.Len(t, summary.Results[0].Assertions, 1)
		assert.False(t, summary.Results[0].Assertions[0].Passed)
	})

	t.Run("with bail", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		summary, status := NewRunner(&Config{Bail: true}).Run(context.Background(), writeHTTPFile(t, content))
		assert.Equal(t, StatusFailure, status)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, 1, summary.Skipped)
		assert.True(t, summary.Results[1].Skipped)
	})
}

func TestRunner_AuthProvider(t *testing.T) {
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
	}))
	defer server.Close()

	registry := auth.NewRegistry()
	require.NoError(t, registry.Register(&auth.Bearer{ProviderName: "api", Token: "t0k"}))

	path := writeHTTPFile(t, `###
## AUTH-PROVIDER: api
GET `+server.URL+`
`)
	_, status := NewRunner(&Config{Auth: registry}).Run(context.Background(), path)
	assert.Equal(t, StatusSuccess, status)
	assert.Equal(t, "Bearer t0k", authorization)

	path = writeHTTPFile(t, `###
## AUTH-PROVIDER: nobody
GET `+server.URL+`
`)
	summary, status := NewRunner(&Config{Auth: registry}).Run(context.Background(), path)
	assert.Equal(t, StatusFailure, status)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0].Err, auth.ErrUnknownProvider)
}

func TestRunner_UnknownStrategy(t *testing.T) {
	path := writeHTTPFile(t, `###
## RETRY-STRATEGY: nope
GET https://example.invalid
`)
	summary, status := NewRunner(nil).Run(context.Background(), path)
	assert.Equal(t, StatusFailure, status)
	require.Len(t, summary.Failures, 1)

	var unregistered *resilience.UnregisteredError
	assert.True(t, errors.As(summary.Failures[0].Err, &unregistered))
	assert.IsType(t, &ResolvePolicyStep{}, summary.Failures[0].Step)
}

func TestRunner_TestCasesAreIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Id", "42")
	}))
	defer server.Close()

	first := writeHTTPFile(t, `###
# @name first
GET `+server.URL+`
`)
	second := writeHTTPFile(t, `###
GET `+server.URL+`/{{first.response.headers.X-Id}}
`)
	summary, status := NewRunner(nil).Run(context.Background(), first, second)

	assert.Equal(t, StatusFailure, status)
	assert.Equal(t, 1, summary.Passed)
	require.Len(t, summary.Failures, 1)
	assert.IsType(t, &ParseStep{}, summary.Failures[0].Step)
}

func TestRunner_WritesHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	path := writeHTTPFile(t, `### ping
GET `+server.URL+`/ping
`)
	summary, status := NewRunner(&Config{History: store}).Run(context.Background(), path)
	require.Equal(t, StatusSuccess, status)

	entries, err := store.Run(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ping", entries[0].Name)
	assert.Equal(t, server.URL+"/ping", entries[0].URL)
	assert.Equal(t, 200, entries[0].Status)
	assert.True(t, entries[0].Passed)
}

func TestRunner_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reporter := &countingReporter{}
	summary, status := NewRunner(&Config{Reporter: reporter}).Run(ctx, writeHTTPFile(t, "###\nGET https://example.invalid\n"))
	assert.Equal(t, StatusCancelled, status)
	assert.Equal(t, 1, reporter.calls)
	assert.Empty(t, summary.Results)
}

func TestRunner_MissingFile(t *testing.T) {
	summary, status := NewRunner(nil).Run(context.Background(), filepath.Join(t.TempDir(), "nope.http"))
	assert.Equal(t, StatusFailure, status)
	require.Len(t, summary.Failures, 1)
	assert.ErrorIs(t, summary.Failures[0].Err, os.ErrNotExist)
}
