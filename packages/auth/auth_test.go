package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, url, nil)
	} else {
		req, err = http.NewRequest(method, url, strings.NewReader(body))
	}
	require.NoError(t, err)
	return req
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Bearer{ProviderName: "svc", Token: "t"}))
	assert.Error(t, r.Register(&Bearer{}))

	p, err := r.Lookup("svc")
	require.NoError(t, err)
	assert.Equal(t, "svc", p.Name())
	assert.Equal(t, []string{"svc"}, r.Names())

	_, err = r.Lookup("admin")
	assert.True(t, errors.Is(err, ErrUnknownProvider))
	assert.Contains(t, err.Error(), `"admin"`)
}

func TestStaticProviders(t *testing.T) {
	ctx := context.Background()

	req := newRequest(t, http.MethodGet, "https://x/me", "")
	require.NoError(t, (&Basic{Username: "ann", Password: "pw"}).Apply(ctx, req))
	user, pass, ok := req.BasicAuth()
	assert.True(t, ok)
	assert.Equal(t, "ann", user)
	assert.Equal(t, "pw", pass)

	req = newRequest(t, http.MethodGet, "https://x/me", "")
	require.NoError(t, (&Bearer{Token: "abc"}).Apply(ctx, req))
	assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))

	req = newRequest(t, http.MethodGet, "https://x/me?a=1", "")
	require.NoError(t, (&APIKey{Key: "api_key", Value: "k", InQuery: true}).Apply(ctx, req))
	assert.Equal(t, "k", req.URL.Query().Get("api_key"))
	assert.Equal(t, "1", req.URL.Query().Get("a"))

	req = newRequest(t, http.MethodGet, "https://x/me", "")
	require.NoError(t, (&APIKey{Key: "X-Api-Key", Value: "k"}).Apply(ctx, req))
	assert.Equal(t, "k", req.Header.Get("X-Api-Key"))
}

func TestAWSSigV4_Deterministic(t *testing.T) {
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	signer := &AWSSigV4{AccessKey: "AKID", SecretKey: "secret", Region: "us-east-1", Service: "execute-api", now: func() time.Time { return fixed }}

	sign := func() *http.Request {
		req := newRequest(t, http.MethodPost, "https://api.example.com/items?b=2&a=1", `{"x":1}`)
		require.NoError(t, signer.Apply(context.Background(), req))
		return req
	}
	first, second := sign(), sign()

	auth := first.Header.Get("Authorization")
	assert.True(t, strings.HasPrefix(auth, "AWS4-HMAC-SHA256 Credential=AKID/20240102/us-east-1/execute-api/aws4_request"))
	assert.Contains(t, auth, "SignedHeaders=host;x-amz-date")
	assert.Equal(t, auth, second.Header.Get("Authorization"))
	assert.Equal(t, "20240102T030405Z", first.Header.Get("X-Amz-Date"))
	assert.Equal(t, sha256Hex([]byte(`{"x":1}`)), first.Header.Get("X-Amz-Content-Sha256"))
	assert.Equal(t, "a=1&b=2", canonicalQuery(first.URL.Query()))
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantErr  bool
		want     interface{}
	}{
		{"basic", Settings{Type: "basic", Username: "u"}, false, &Basic{}},
		{"bearer", Settings{Type: "Bearer", Token: "t"}, false, &Bearer{}},
		{"bearer without token", Settings{Type: "bearer"}, true, nil},
		{"apikey header", Settings{Type: "apikey", Header: "X-Key", Value: "v"}, false, &APIKey{}},
		{"apikey missing target", Settings{Type: "apikey"}, true, nil},
		{"aws incomplete", Settings{Type: "aws", AccessKey: "a"}, true, nil},
		{"oauth2 missing url", Settings{Type: "oauth2"}, true, nil},
		{"unknown", Settings{Type: "kerberos"}, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.name, tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, p)
			assert.Equal(t, tt.name, p.Name())
		})
	}
}

func TestSettings_Resolve(t *testing.T) {
	s := Settings{Type: "bearer", Token: "{{token}}"}
	out, err := s.Resolve(func(v string) (string, error) {
		return strings.ReplaceAll(v, "{{token}}", "abc"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "abc", out.Token)
	assert.Equal(t, "{{token}}", s.Token)
}
