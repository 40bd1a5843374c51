package http

import (
	"io"
	"net/http"
	"time"
)

type Response struct {
	StatusCode int
	Status     string
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Attempts   int
}

// ReadResponse drains and closes resp and returns its buffered form.
func ReadResponse(resp *http.Response, d time.Duration) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Headers:    resp.Header.Clone(),
		Body:       body,
		Duration:   d,
		Attempts:   1,
	}, nil
}

func (r *Response) Header(key string) string {
	return r.Headers.Get(key)
}

func (r *Response) HasHeader(key string) bool {
	return len(r.Headers.Values(key)) > 0
}

func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
