// Package resilience resolves and executes retry policies for HTTP calls.
//
// Named strategies live in a Registry. A Resolver combines a strategy with
// per-call overrides and a status allow-list into a compiled Policy, caching
// policies that were not altered. Policy.Execute runs an operation with the
// configured backoff schedule.
package resilience
