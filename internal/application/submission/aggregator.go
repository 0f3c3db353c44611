package submission

import (
	"sort"
	"sync"
	"time"
)

// BatchStats summarizes one batch run.
type BatchStats struct {
	Total      int
	Accepted   int
	Rejected   int
	Failed     int
	Duration   time.Duration
	Throughput float64 // documents per second
}

// ResultAggregator collects outcomes from concurrent workers.
type ResultAggregator struct {
	mu        sync.Mutex
	outcomes  []DocumentOutcome
	total     int
	accepted  int
	rejected  int
	failed    int
	startTime time.Time
}

// NewResultAggregator creates an aggregator for a batch of the given size.
func NewResultAggregator(total int) *ResultAggregator {
	return &ResultAggregator{
		outcomes:  make([]DocumentOutcome, 0, total),
		total:     total,
		startTime: time.Now(),
	}
}

// Add records one outcome. Accepted means the ministry accepted the document;
// Rejected covers the terminal "rechazado" and "error" verdicts; everything
// that never got a verdict counts as Failed.
func (a *ResultAggregator) Add(outcome DocumentOutcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.outcomes = append(a.outcomes, outcome)
	switch {
	case outcome.Err != nil:
		a.failed++
	case outcome.Accepted():
		a.accepted++
	default:
		a.rejected++
	}
}

// Outcomes returns the collected outcomes ordered by batch index.
func (a *ResultAggregator) Outcomes() []DocumentOutcome {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]DocumentOutcome, len(a.outcomes))
	copy(out, a.outcomes)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Stats returns the statistics accumulated so far.
func (a *ResultAggregator) Stats() BatchStats {
	a.mu.Lock()
	defer a.mu.Unlock()

	duration := time.Since(a.startTime)
	completed := a.accepted + a.rejected + a.failed
	var throughput float64
	if duration.Seconds() > 0 {
		throughput = float64(completed) / duration.Seconds()
	}

	return BatchStats{
		Total:      a.total,
		Accepted:   a.accepted,
		Rejected:   a.rejected,
		Failed:     a.failed,
		Duration:   duration,
		Throughput: throughput,
	}
}
