package auth

import (
	"context"
	"net/http"
)

type Basic struct {
	ProviderName string
	Username     string
	Password     string
}

func (b *Basic) Name() string { return b.ProviderName }

func (b *Basic) Apply(_ context.Context, req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

type Bearer struct {
	ProviderName string
	Token        string
}

func (b *Bearer) Name() string { return b.ProviderName }

func (b *Bearer) Apply(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// APIKey sends a key in a header, or in the query string when InQuery is set.
type APIKey struct {
	ProviderName string
	Key          string
	Value        string
	InQuery      bool
}

func (a *APIKey) Name() string { return a.ProviderName }

func (a *APIKey) Apply(_ context.Context, req *http.Request) error {
	if a.InQuery {
		q := req.URL.Query()
		q.Set(a.Key, a.Value)
		req.URL.RawQuery = q.Encode()
		return nil
	}
	req.Header.Set(a.Key, a.Value)
	return nil
}
