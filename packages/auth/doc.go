// Package auth provides the named credential providers selected with the
// AUTH-PROVIDER directive: basic, bearer, API key, AWS Signature V4 and
// OAuth2.
package auth
