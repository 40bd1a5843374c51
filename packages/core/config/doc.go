// Package config loads hitflow.yaml.
//
// The file holds HTTP client defaults, variables for the global and
// collection tiers, named environments, retry strategies and auth providers.
// ${VAR} references are expanded from the process environment.
package config
