// Package http sends the requests described by parsed envelopes.
//
// It wraps the standard library's http package with:
//   - Configurable timeouts, redirects, TLS verification and proxy
//   - Client-wide default headers
//   - Rate limiting of outgoing calls
//   - Request bodies loaded from files with "< path"
//   - Buffered responses
package http
