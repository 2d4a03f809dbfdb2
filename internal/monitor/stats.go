// Package monitor keeps pipeline throughput counters and serves them on the
// debug dashboard.
package monitor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/banshee-data/bodyviewer/internal/timeutil"
)

// historySize is the number of snapshots kept for the dashboard.
const historySize = 120

// Totals are counters since the stats were created.
type Totals struct {
	Captures  uint64 `json:"captures"`
	Results   uint64 `json:"results"`
	Bodies    uint64 `json:"bodies"`
	Dropped   uint64 `json:"dropped"`
	Skipped   uint64 `json:"skipped"`
	Published uint64 `json:"published"`
}

func (t Totals) sub(o Totals) Totals {
	return Totals{
		Captures:  t.Captures - o.Captures,
		Results:   t.Results - o.Results,
		Bodies:    t.Bodies - o.Bodies,
		Dropped:   t.Dropped - o.Dropped,
		Skipped:   t.Skipped - o.Skipped,
		Published: t.Published - o.Published,
	}
}

// Snapshot is the rate over one logging interval.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	CapturesPerSec  float64   `json:"captures_per_sec"`
	ResultsPerSec   float64   `json:"results_per_sec"`
	BodiesPerResult float64   `json:"bodies_per_result"`
	Dropped         uint64    `json:"dropped"`
	Skipped         uint64    `json:"skipped"`
}

// Stats counts pipeline events. It is safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	totals    Totals
	lastReset Totals
	resetTime time.Time
	startTime time.Time
	history   []Snapshot
}

// NewStats creates a Stats on the real clock.
func NewStats() *Stats {
	return NewStatsWithClock(timeutil.RealClock{})
}

// NewStatsWithClock creates a Stats driven by clock.
func NewStatsWithClock(clock timeutil.Clock) *Stats {
	now := clock.Now()
	return &Stats{
		clock:     clock,
		resetTime: now,
		startTime: now,
	}
}

// AddCapture counts a capture read from the source.
func (s *Stats) AddCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Captures++
}

// AddResult counts a tracker result with the given number of bodies.
func (s *Stats) AddResult(bodies int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Results++
	s.totals.Bodies += uint64(bodies)
}

// AddDropped counts a capture the tracker could not take.
func (s *Stats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Dropped++
}

// AddSkipped counts a capture without a depth image.
func (s *Stats) AddSkipped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Skipped++
}

// AddPublished counts a record written to the key-value store.
func (s *Stats) AddPublished() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals.Published++
}

// Totals returns the counters since creation.
func (s *Stats) Totals() Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// GetAndReset returns the counts since the previous call and the time they
// cover.
func (s *Stats) GetAndReset() (Totals, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	delta := s.totals.sub(s.lastReset)
	duration := now.Sub(s.resetTime)
	s.lastReset = s.totals
	s.resetTime = now
	return delta, duration
}

// LogStats logs the rates since the previous call and records a snapshot
// for the dashboard. Idle intervals are not logged.
func (s *Stats) LogStats() {
	delta, duration := s.GetAndReset()
	if delta.Captures == 0 && delta.Results == 0 {
		return
	}
	secs := duration.Seconds()
	if secs <= 0 {
		return
	}

	snap := Snapshot{
		Timestamp:      s.clock.Now(),
		CapturesPerSec: float64(delta.Captures) / secs,
		ResultsPerSec:  float64(delta.Results) / secs,
		Dropped:        delta.Dropped,
		Skipped:        delta.Skipped,
	}
	if delta.Results > 0 {
		snap.BodiesPerResult = float64(delta.Bodies) / float64(delta.Results)
	}

	s.mu.Lock()
	s.history = append(s.history, snap)
	if len(s.history) > historySize {
		s.history = s.history[len(s.history)-historySize:]
	}
	s.mu.Unlock()

	msg := fmt.Sprintf("[Stats] %.1f captures/s, %.1f results/s, %.2f bodies/result",
		snap.CapturesPerSec, snap.ResultsPerSec, snap.BodiesPerResult)
	if delta.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", delta.Dropped)
	}
	if delta.Skipped > 0 {
		msg += fmt.Sprintf(", %d without depth", delta.Skipped)
	}
	log.Print(msg)
}

// GetLatestSnapshot returns the most recent snapshot, or nil before the
// first logged interval.
func (s *Stats) GetLatestSnapshot() *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return nil
	}
	snap := s.history[len(s.history)-1]
	return &snap
}

// History returns a copy of the recorded snapshots, oldest first.
func (s *Stats) History() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.history...)
}

// GetUptime returns the time since the stats were created.
func (s *Stats) GetUptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Since(s.startTime)
}

// Run calls LogStats every interval until ctx is done.
func (s *Stats) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.LogStats()
		}
	}
}

// FormatWithCommas formats a number with thousands separators
func FormatWithCommas(n uint64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	result := ""
	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}
	return result
}
