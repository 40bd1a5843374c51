// Package output renders the summary of a run.
//
// Supported formats:
//   - console: human-readable coloured terminal output
//   - json: one machine-readable JSON document
//   - junit: JUnit XML for CI integration
//
// Every formatter implements runner.Reporter and is invoked once, by the
// report step at the end of the pipeline.
package output
