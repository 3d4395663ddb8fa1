package metrics

import "time"

// JobResultLabel enumerates job outcome categories for counters.
type JobResultLabel string

const (
	JobRendered   JobResultLabel = "rendered"
	JobReused     JobResultLabel = "reused"
	JobFailed     JobResultLabel = "failed"
	JobCrashed    JobResultLabel = "crashed"
	JobOverridden JobResultLabel = "overridden"
)

// BakeOutcomeLabel enumerates final bake statuses.
type BakeOutcomeLabel string

const (
	BakeSuccess BakeOutcomeLabel = "success"
	BakeFailed  BakeOutcomeLabel = "failed"
	BakeAborted BakeOutcomeLabel = "aborted"
)

// Recorder defines observability hooks for bakes. Implementations may
// forward to Prometheus or anything else.
type Recorder interface {
	ObserveBakeDuration(d time.Duration)
	IncBakeOutcome(outcome BakeOutcomeLabel)
	ObservePassDuration(realm string, pass int, d time.Duration)
	IncJobResult(pipeline string, result JobResultLabel)
	SetWorkers(n int)
	IncCacheInvalidation(reason string)
	AddStaleDeletions(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveBakeDuration(time.Duration)              {}
func (NoopRecorder) IncBakeOutcome(BakeOutcomeLabel)                {}
func (NoopRecorder) ObservePassDuration(string, int, time.Duration) {}
func (NoopRecorder) IncJobResult(string, JobResultLabel)            {}
func (NoopRecorder) SetWorkers(int)                                 {}
func (NoopRecorder) IncCacheInvalidation(string)                    {}
func (NoopRecorder) AddStaleDeletions(int)                          {}
