// Package stats holds mergeable execution statistics gathered by workers and the orchestrator.
package stats

import (
	"maps"
	"slices"
	"time"
)

// ExecutionStats accumulates timers, counters and manifests. It is not safe for
// concurrent use; each worker owns one and the orchestrator merges them.
type ExecutionStats struct {
	Timers    map[string]time.Duration `json:"timers"`
	Counters  map[string]int           `json:"counters"`
	Manifests map[string][]string      `json:"manifests,omitempty"`
}

// New returns empty statistics.
func New() *ExecutionStats {
	return &ExecutionStats{
		Timers:    make(map[string]time.Duration),
		Counters:  make(map[string]int),
		Manifests: make(map[string][]string),
	}
}

func (s *ExecutionStats) ensure() {
	if s.Timers == nil {
		s.Timers = make(map[string]time.Duration)
	}
	if s.Counters == nil {
		s.Counters = make(map[string]int)
	}
	if s.Manifests == nil {
		s.Manifests = make(map[string][]string)
	}
}

// StepTimer adds d to the named timer.
func (s *ExecutionStats) StepTimer(name string, d time.Duration) {
	s.ensure()
	s.Timers[name] += d
}

// TimeSince adds the time elapsed since start to the named timer.
func (s *ExecutionStats) TimeSince(name string, start time.Time) {
	s.StepTimer(name, time.Since(start))
}

// StepCounter adds n to the named counter.
func (s *ExecutionStats) StepCounter(name string, n int) {
	s.ensure()
	s.Counters[name] += n
}

// AddManifestEntry appends entry to the named manifest.
func (s *ExecutionStats) AddManifestEntry(name, entry string) {
	s.ensure()
	s.Manifests[name] = append(s.Manifests[name], entry)
}

// MergeStats folds other into s. Nil is a no-op.
func (s *ExecutionStats) MergeStats(other *ExecutionStats) {
	if other == nil {
		return
	}
	s.ensure()
	for k, v := range other.Timers {
		s.Timers[k] += v
	}
	for k, v := range other.Counters {
		s.Counters[k] += v
	}
	for k, v := range other.Manifests {
		s.Manifests[k] = append(s.Manifests[k], v...)
	}
}

// TimerNames returns timer names in sorted order, for reporting.
func (s *ExecutionStats) TimerNames() []string {
	return slices.Sorted(maps.Keys(s.Timers))
}

// CounterNames returns counter names in sorted order, for reporting.
func (s *ExecutionStats) CounterNames() []string {
	return slices.Sorted(maps.Keys(s.Counters))
}
