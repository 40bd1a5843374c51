// Package runner executes request files as a pipeline of steps.
//
// Each file contributes a BeginTestCaseStep and a ReadFileStep. Reading a
// file schedules, right after itself, one chain per request block:
//
//	parse -> resolve-policy -> execute -> record -> dispose
//
// The pipeline runs one step at a time, stops at the first step error and
// always runs its report step exactly once. Retries happen inside the
// resolved resilience policy of a single call; the pipeline never re-runs a
// step.
package runner
