// Package history keeps an optional SQLite log of executed calls, one row
// per call with its run ID, final status and attempt count.
package history
