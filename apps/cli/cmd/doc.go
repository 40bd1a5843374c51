// Package cmd implements the hitflow CLI commands using Cobra.
//
// Available commands:
//   - run: Execute the requests of .http files as a step pipeline
//   - validate: Check syntax and directive names without executing
//   - list: Display every request block with its directives
//   - strategies: Show the registered retry strategies
//   - init: Create a config file and an example request file
//   - version: Show hitflow version information
//
// Exit codes follow the pipeline status: 0 on success, 1 for failed
// calls, 2 for parse errors, 3 for configuration errors, 64 for bad
// usage and 130 when interrupted.
package cmd
