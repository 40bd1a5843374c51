package http

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/hitflow/packages/core/parser"
)

// Request is an outgoing call built from a parsed envelope.
type Request struct {
	Method  string
	URL     string
	Headers parser.Headers
	Body    string
	BaseDir string // Base directory for resolving "< file" bodies
}

// FromEnvelope copies an envelope into a request.
func FromEnvelope(env *parser.Envelope, baseDir string) *Request {
	return &Request{
		Method:  env.Method(),
		URL:     env.URI(),
		Headers: env.Headers(),
		Body:    env.Body(),
		BaseDir: baseDir,
	}
}

// Build returns a *http.Request whose body can be re-read through GetBody,
// so the same request can be sent again on retry.
func (r *Request) Build(ctx context.Context) (*http.Request, error) {
	target := r.URL
	if err := ValidateURL(target); err != nil {
		return nil, err
	}

	body, err := r.resolveBody()
	if err != nil {
		return nil, err
	}

	var httpReq *http.Request
	if body == "" {
		httpReq, err = http.NewRequestWithContext(ctx, r.Method, target, nil)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, r.Method, target, strings.NewReader(body))
	}
	if err != nil {
		return nil, err
	}

	for _, f := range r.Headers.Fields() {
		if strings.EqualFold(f.Name, "Host") {
			httpReq.Host = f.Value
			continue
		}
		httpReq.Header.Add(f.Name, f.Value)
	}
	return httpReq, nil
}

// resolveBody replaces a body of the form "< path" with the file contents.
func (r *Request) resolveBody() (string, error) {
	trimmed := strings.TrimSpace(r.Body)
	if !strings.HasPrefix(trimmed, "<") || strings.Contains(trimmed, "\n") {
		return r.Body, nil
	}
	path := strings.TrimSpace(strings.TrimPrefix(trimmed, "<"))
	if path == "" || strings.HasPrefix(path, "?") || strings.HasPrefix(path, "!") {
		return r.Body, nil
	}
	if !filepath.IsAbs(path) && r.BaseDir != "" {
		path = filepath.Join(r.BaseDir, path)
	}
	if err := validatePathWithinBase(path, r.BaseDir); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading request body file: %w", err)
	}
	return string(data), nil
}

// validatePathWithinBase checks that the resolved path stays within the base directory
// to prevent path traversal attacks
func validatePathWithinBase(path, baseDir string) error {
	if baseDir == "" {
		return nil
	}

	cleanBase, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base directory: %v", err)
	}

	cleanPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %v", err)
	}

	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("path traversal detected: %s is outside allowed directory %s", path, baseDir)
	}

	return nil
}
