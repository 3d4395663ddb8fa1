// Package pipeline turns content items into jobs, runs them and merges their
// multi-pass results into the record store.
//
// Pipelines form a closed set ("page", "asset") sharing the Pipeline
// interface. One instance exists per content source per bake in the
// orchestrator, and one per worker for running jobs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/config"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/sources"
	"git.home.luguber.info/inful/bakery/internal/stats"
)

var (
	// ErrUnknownPipeline is returned for a pipeline name outside the known set.
	ErrUnknownPipeline = errors.New("unknown pipeline")
	// ErrPipelineExcluded is returned when the allowed-pipelines filter rejects a source.
	ErrPipelineExcluded = errors.New("pipeline excluded")
)

// Job is one unit of scheduled work.
type Job struct {
	ID         string
	SourceName string
	RecordName string
	Item       sources.ContentItem
	// Route is the item's output path, empty when the source cannot map it.
	Route string
	Pass  int
	Data  map[string]any
}

// JobResult is what a worker reports for a finished job.
type JobResult struct {
	Entry *records.Entry
	// NextPassJob is at most one follow-up job for the next pass.
	NextPassJob *Job
}

// Env is the immutable context shared by every pipeline of one bake.
type Env struct {
	OutDir        string
	Site          config.SiteConfig
	TemplatesDirs []string
	Cache         *cache.Cache
	Force         bool
	// AssetURLFormat controls how asset URLs are written into pages.
	AssetURLFormat string
	Logger         *slog.Logger
}

func (e *Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// CreateJobsContext is handed to CreateJobs on the orchestrator goroutine.
type CreateJobsContext struct {
	Pass int
	// Record is the current record of the source. Pipelines may add entries
	// for items they decide not to dispatch.
	Record *records.Record
	// Claimed maps output paths already produced or routed in this generation
	// to the item spec holding them.
	Claimed map[string]string
}

// RunContext is handed to Run inside a worker.
type RunContext struct {
	// Previous is the entry of the previous generation for the job's item, if any.
	Previous *records.Entry
	Stats    *stats.ExecutionStats
}

// MergeRecordContext is handed to MergeRecordEntry for pass >= 1 results.
type MergeRecordContext struct {
	Entry *records.Entry
	Job   *Job
}

// Pipeline is the capability every pipeline variant provides.
type Pipeline interface {
	Name() string
	PassNum() int
	EntryKind() string
	Source() sources.Source
	RecordName() string
	// CreateJobs returns the pass 0 jobs for every item of the source.
	CreateJobs(ctx *CreateJobsContext) ([]*Job, error)
	// Run executes a job. Item failures are reported in the entry; an error
	// return means the job itself could not run.
	Run(ctx context.Context, job *Job, rc *RunContext) (*JobResult, error)
	// MergeRecordEntry folds a pass >= 1 result into the existing entry.
	MergeRecordEntry(newEntry *records.Entry, mc *MergeRecordContext) error
	// CollapseRecord compacts the current record before it is persisted.
	CollapseRecord(h *records.RecordHistory)
	Shutdown() error
}

// NameForSource returns the pipeline a source is baked with.
func NameForSource(src sources.Source) string {
	return src.PipelineName()
}

// New builds the named pipeline for src.
func New(name string, src sources.Source, env *Env) (Pipeline, error) {
	switch name {
	case sources.PipelinePage:
		return newPagePipeline(src, env), nil
	case sources.PipelineAsset:
		return newAssetPipeline(src, env), nil
	default:
		return nil, fmt.Errorf("%w: %q (source %s)", ErrUnknownPipeline, name, src.Name())
	}
}

// Names lists the known pipelines.
func Names() []string {
	return []string{sources.PipelinePage, sources.PipelineAsset}
}
