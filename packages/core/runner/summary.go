package runner

import (
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/hitflow/packages/assertions"
)

type CallResult struct {
	File       string
	Name       string
	Line       int
	Method     string
	URL        string
	Policy     string
	StatusCode int
	Attempts   int
	Duration   time.Duration
	Passed     bool
	Skipped    bool
	SkipReason string
	Assertions []*assertions.Result
	Error      error
}

// Latency summarises call durations. Values are recorded in microseconds.
type Latency struct {
	Count int64
	Min   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P90   time.Duration
	P99   time.Duration
	Max   time.Duration
}

type Summary struct {
	RunID    string
	Files    []string
	Results  []*CallResult
	Passed   int
	Failed   int
	Skipped  int
	Duration time.Duration
	Latency  Latency
	Failures []StepFailure

	start     time.Time
	histogram *hdrhistogram.Histogram
}

func NewSummary(runID string) *Summary {
	return &Summary{
		RunID:     runID,
		start:     time.Now(),
		histogram: hdrhistogram.New(1, 3_600_000_000, 3),
	}
}

func (s *Summary) add(r *CallResult) {
	if s == nil {
		return
	}
	s.Results = append(s.Results, r)
	switch {
	case r.Skipped:
		s.Skipped++
	case r.Passed:
		s.Passed++
	default:
		s.Failed++
	}
	if r.Duration > 0 && s.histogram != nil {
		_ = s.histogram.RecordValue(r.Duration.Microseconds())
	}
}

func (s *Summary) finish(failures []StepFailure) {
	if s == nil {
		return
	}
	s.Failures = failures
	if !s.start.IsZero() {
		s.Duration = time.Since(s.start)
	}
	if s.histogram == nil || s.histogram.TotalCount() == 0 {
		return
	}
	h := s.histogram
	s.Latency = Latency{
		Count: h.TotalCount(),
		Min:   time.Duration(h.Min()) * time.Microsecond,
		Mean:  time.Duration(h.Mean()) * time.Microsecond,
		P50:   time.Duration(h.ValueAtQuantile(50)) * time.Microsecond,
		P90:   time.Duration(h.ValueAtQuantile(90)) * time.Microsecond,
		P99:   time.Duration(h.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(h.Max()) * time.Microsecond,
	}
}

// Success reports whether every call passed and no step failed.
func (s *Summary) Success() bool {
	return s.Failed == 0 && len(s.Failures) == 0
}
