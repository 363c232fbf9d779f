package analyze

import (
	"sort"
	"sync"
	"time"
)

// ringCap bounds the sample buffer. Long batch runs can record far more
// calls than the window ever expires, so the ring overwrites oldest first
// instead of growing.
const ringCap = 4096

type entry struct {
	at time.Time
	ms int64
}

// StatsSnapshot is a point-in-time aggregate of provider call latencies.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// CallStats keeps a sliding window of provider call latencies in a fixed
// ring. Expired entries are not pruned eagerly; Snapshot filters them out,
// and the ring cap keeps memory bounded either way.
type CallStats struct {
	mu     sync.Mutex
	buf    []entry
	next   int // write cursor once the ring is full
	window time.Duration
}

// NewCallStats returns stats aggregating samples no older than window.
// Non-positive windows fall back to one hour.
func NewCallStats(window time.Duration) *CallStats {
	if window <= 0 {
		window = time.Hour
	}
	return &CallStats{window: window}
}

// Record adds one call duration in milliseconds. Negative durations count
// as zero so clock adjustments cannot skew the aggregates.
func (s *CallStats) Record(ms int64) {
	if ms < 0 {
		ms = 0
	}
	e := entry{at: time.Now(), ms: ms}

	s.mu.Lock()
	if len(s.buf) < ringCap {
		s.buf = append(s.buf, e)
	} else {
		s.buf[s.next] = e
		s.next = (s.next + 1) % ringCap
	}
	s.mu.Unlock()
}

// Snapshot aggregates the samples still inside the window. With no live
// samples it returns the zero snapshot.
func (s *CallStats) Snapshot() StatsSnapshot {
	cutoff := time.Now().Add(-s.window)

	s.mu.Lock()
	live := make([]int64, 0, len(s.buf))
	var sum int64
	for _, e := range s.buf {
		if e.at.Before(cutoff) {
			continue
		}
		live = append(live, e.ms)
		sum += e.ms
	}
	s.mu.Unlock()

	if len(live) == 0 {
		return StatsSnapshot{}
	}
	sort.Slice(live, func(i, j int) bool { return live[i] < live[j] })

	return StatsSnapshot{
		Count: len(live),
		MinMs: live[0],
		MaxMs: live[len(live)-1],
		AvgMs: float64(sum) / float64(len(live)),
		P50Ms: quantile(live, 0.50),
		P95Ms: quantile(live, 0.95),
		P99Ms: quantile(live, 0.99),
	}
}

// quantile interpolates linearly between the two ranks straddling q.
// values must be sorted ascending; q is clamped to [0, 1].
func quantile(values []int64, q float64) float64 {
	switch {
	case len(values) == 0:
		return 0
	case q <= 0:
		return float64(values[0])
	case q >= 1:
		return float64(values[len(values)-1])
	}

	pos := q * float64(len(values)-1)
	i := int(pos)
	if i+1 >= len(values) {
		return float64(values[len(values)-1])
	}
	frac := pos - float64(i)
	return float64(values[i])*(1-frac) + float64(values[i+1])*frac
}
