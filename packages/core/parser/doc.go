// Package parser turns .http request files into request envelopes.
//
// A file is split into blocks on lines starting with ###. Each line of a
// block is passed through an ordered chain of line parsers:
//   - comments (# or //), one of which may name the block with @name
//   - ## directives that select retry strategies, auth providers and
//     schedule assertions
//   - the METHOD URI [HTTP/x.y] request line
//   - Name: value headers
//   - the body, after the first blank line following the request line
//
// The result is an immutable Envelope plus the DirectiveSet of the block.
package parser
