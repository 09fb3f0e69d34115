package filter

import (
	"strings"
	"time"

	"tradetrace/src/model"
)

// Apply evaluates each trace against the predicate set. Predicates are
// conjunctive; an unset field imposes no constraint. The input order is
// preserved and the input slice is never mutated.
func Apply(traces []model.Trace, f model.TraceQueryFilters) []model.Trace {
	if f.Empty() {
		return traces
	}

	out := make([]model.Trace, 0, len(traces))
	for _, trace := range traces {
		if Matches(trace, f) {
			out = append(out, trace)
		}
	}
	return out
}

// Matches reports whether a single trace satisfies every set predicate.
func Matches(trace model.Trace, f model.TraceQueryFilters) bool {
	if f.Ticker != nil && trace.Ticker != *f.Ticker {
		return false
	}
	if f.Strategy != nil && !strings.Contains(
		strings.ToLower(trace.Strategy), strings.ToLower(*f.Strategy)) {
		return false
	}
	if f.GhostStatus != nil && trace.GhostStatus != *f.GhostStatus {
		return false
	}
	if f.TradovateStatus != nil && trace.TradovateStatus != *f.TradovateStatus {
		return false
	}
	if f.StartTime != nil {
		start := startOfDay(f.StartTime.Time)
		if trace.AlertReceivedAt.Time.Before(start) {
			return false
		}
	}
	if f.EndTime != nil {
		// A selected end date captures the whole day, not just midnight.
		end := endOfDay(f.EndTime.Time)
		if trace.AlertReceivedAt.Time.After(end) {
			return false
		}
	}
	return true
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 999999999, t.Location())
}
