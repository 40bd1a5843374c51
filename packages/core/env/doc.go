// Package env resolves {{...}} variable tokens in request files.
//
// Variables live in a four-tier Store (test case, collection, environment,
// global). Tokens of the form id.(request|response).(body|headers).query
// read from exchanges recorded earlier in the same test case, using JSON
// paths for JSON bodies and XPath for XML bodies. Tokens starting with $
// call the dynamic functions of package builtin. A token that resolves to
// nothing is an error.
package env
