package auth

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/hitflow/packages/auth/oauth2"
)

// Settings is the configuration-file form of a provider.
type Settings struct {
	Type         string   `yaml:"type"`
	Username     string   `yaml:"username,omitempty"`
	Password     string   `yaml:"password,omitempty"`
	Token        string   `yaml:"token,omitempty"`
	Header       string   `yaml:"header,omitempty"`
	Query        string   `yaml:"query,omitempty"`
	Value        string   `yaml:"value,omitempty"`
	TokenURL     string   `yaml:"tokenUrl,omitempty"`
	ClientID     string   `yaml:"clientId,omitempty"`
	ClientSecret string   `yaml:"clientSecret,omitempty"`
	GrantType    string   `yaml:"grantType,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
	AccessKey    string   `yaml:"accessKey,omitempty"`
	SecretKey    string   `yaml:"secretKey,omitempty"`
	Region       string   `yaml:"region,omitempty"`
	Service      string   `yaml:"service,omitempty"`
}

// Resolve returns a copy of s with every string field passed through fn,
// which expands variables in configured credentials.
func (s Settings) Resolve(fn func(string) (string, error)) (Settings, error) {
	fields := []*string{
		&s.Username, &s.Password, &s.Token, &s.Header, &s.Query, &s.Value,
		&s.TokenURL, &s.ClientID, &s.ClientSecret, &s.AccessKey, &s.SecretKey,
		&s.Region, &s.Service,
	}
	for _, f := range fields {
		v, err := fn(*f)
		if err != nil {
			return s, err
		}
		*f = v
	}
	return s, nil
}

// New builds a provider named name from its settings.
func New(name string, s Settings) (Provider, error) {
	switch strings.ToLower(s.Type) {
	case "basic":
		return &Basic{ProviderName: name, Username: s.Username, Password: s.Password}, nil
	case "bearer":
		if s.Token == "" {
			return nil, fmt.Errorf("auth provider %s: bearer token is required", name)
		}
		return &Bearer{ProviderName: name, Token: s.Token}, nil
	case "apikey", "api-key":
		switch {
		case s.Header != "":
			return &APIKey{ProviderName: name, Key: s.Header, Value: s.Value}, nil
		case s.Query != "":
			return &APIKey{ProviderName: name, Key: s.Query, Value: s.Value, InQuery: true}, nil
		default:
			return nil, fmt.Errorf("auth provider %s: apikey needs a header or query name", name)
		}
	case "aws", "aws-sigv4":
		if s.AccessKey == "" || s.SecretKey == "" || s.Region == "" || s.Service == "" {
			return nil, fmt.Errorf("auth provider %s: aws needs accessKey, secretKey, region and service", name)
		}
		return &AWSSigV4{ProviderName: name, AccessKey: s.AccessKey, SecretKey: s.SecretKey, Region: s.Region, Service: s.Service}, nil
	case "oauth2":
		cfg := &oauth2.Config{
			TokenURL:     s.TokenURL,
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			Scopes:       s.Scopes,
			Username:     s.Username,
			Password:     s.Password,
			GrantType:    oauth2.GrantType(s.GrantType),
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("auth provider %s: %w", name, err)
		}
		return oauth2.NewProvider(name, cfg), nil
	default:
		return nil, fmt.Errorf("auth provider %s: unknown type %q", name, s.Type)
	}
}
