// Package assertions evaluates the checks scheduled by TEST-* directives
// against a buffered response: expected status codes, body presence, header
// presence and JSON Schema validation of the body.
package assertions
