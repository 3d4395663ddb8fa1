package baker

import (
	"fmt"
	"log/slog"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/metrics"
	"git.home.luguber.info/inful/bakery/internal/pipeline"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/workerpool"
)

// bakeState is the scheduling state of one bake. It is only touched from the
// orchestrator goroutine: directly, or through the pool callbacks invoked by
// Wait.
type bakeState struct {
	cur      *records.MultiRecord
	mgr      *pipeline.Manager
	recorder metrics.Recorder
	logger   *slog.Logger
	debug    bool

	curPass int
	passes  int
	// nextPassJobs holds follow-up jobs per source for the pass after curPass.
	nextPassJobs map[string][]*pipeline.Job
	order        []string
}

func newBakeState(cur *records.MultiRecord, mgr *pipeline.Manager, recorder metrics.Recorder, logger *slog.Logger, debug bool) *bakeState {
	return &bakeState{
		cur:          cur,
		mgr:          mgr,
		recorder:     recorder,
		logger:       logger,
		debug:        debug,
		nextPassJobs: make(map[string][]*pipeline.Job),
	}
}

func (s *bakeState) beginPass(pass int) {
	s.curPass = pass
	s.passes++
}

// createJobs collects the pass 0 jobs of a realm group. Routes recorded so
// far, built or not, decide which lower-precedence items are overridden.
func (s *bakeState) createJobs(infos []*pipeline.Info) ([]*pipeline.Job, error) {
	claimed := s.cur.ClaimedRoutes()
	var jobs []*pipeline.Job
	for _, info := range infos {
		p := info.Pipeline
		rec := s.cur.GetRecord(p.RecordName(), true)
		before := len(rec.Entries)
		js, err := p.CreateJobs(&pipeline.CreateJobsContext{Pass: 0, Record: rec, Claimed: claimed})
		if err != nil {
			return nil, foundationerrors.WrapError(err, foundationerrors.CategoryPipeline, "failed to create jobs").
				WithContext("source", info.Source.Name()).Fatal().Build()
		}
		for range len(rec.Entries) - before {
			s.recorder.IncJobResult(p.Name(), metrics.JobOverridden)
		}
		jobs = append(jobs, js...)
	}
	return jobs, nil
}

// takeNextPassJobs returns and clears the stashed follow-up jobs.
func (s *bakeState) takeNextPassJobs() []*pipeline.Job {
	var out []*pipeline.Job
	for _, name := range s.order {
		out = append(out, s.nextPassJobs[name]...)
	}
	clear(s.nextPassJobs)
	s.order = s.order[:0]
	return out
}

func (s *bakeState) stash(job *pipeline.Job) {
	if _, ok := s.nextPassJobs[job.SourceName]; !ok {
		s.order = append(s.order, job.SourceName)
	}
	s.nextPassJobs[job.SourceName] = append(s.nextPassJobs[job.SourceName], job)
}

// onResult folds a finished job into the current generation.
func (s *bakeState) onResult(job *pipeline.Job, res *pipeline.JobResult) {
	rec := s.cur.GetRecord(job.RecordName, true)
	info := s.mgr.Pipeline(job.SourceName)
	entry := res.Entry

	if s.curPass == 0 {
		rec.AddEntry(entry)
	} else {
		existing := rec.GetEntry(job.Item.Spec)
		if info == nil {
			s.appendError(job, fmt.Sprintf("no pipeline for source %s", job.SourceName))
			return
		}
		if err := info.Pipeline.MergeRecordEntry(entry, &pipeline.MergeRecordContext{Entry: existing, Job: job}); err != nil {
			s.appendError(job, err.Error())
			return
		}
		if existing != nil && !existing.Success() {
			rec.Success = false
		}
	}

	if res.NextPassJob != nil {
		s.stash(res.NextPassJob)
	}

	name := job.SourceName
	if info != nil {
		name = info.Pipeline.Name()
	}
	if !entry.Success() {
		s.markFailed(rec)
		s.recorder.IncJobResult(name, metrics.JobFailed)
		for _, msg := range entry.Errors {
			s.logger.Error("Item failed",
				logfields.Source(job.SourceName), logfields.Item(job.Item.Spec), logfields.Pass(s.curPass),
				slog.String("message", msg))
		}
		return
	}
	if entry.Reused {
		s.recorder.IncJobResult(name, metrics.JobReused)
	} else {
		s.recorder.IncJobResult(name, metrics.JobRendered)
	}
}

// onError records a job that produced no result.
func (s *bakeState) onError(job *pipeline.Job, failure *workerpool.Failure) {
	name := job.SourceName
	if info := s.mgr.Pipeline(job.SourceName); info != nil {
		name = info.Pipeline.Name()
	}
	s.recorder.IncJobResult(name, metrics.JobCrashed)

	attrs := []any{
		logfields.Source(job.SourceName), logfields.Item(job.Item.Spec), logfields.Pass(s.curPass),
		logfields.JobID(job.ID), slog.String("message", failure.Message),
	}
	if s.debug && failure.Trace != "" {
		attrs = append(attrs, slog.String("trace", failure.Trace))
	}
	s.logger.Error("Job failed", attrs...)
	s.appendError(job, failure.Message)
}

// appendError attaches msg to the job's entry. On pass 0 there is none yet
// and one of the pipeline's entry kind is synthesized.
func (s *bakeState) appendError(job *pipeline.Job, msg string) {
	rec := s.cur.GetRecord(job.RecordName, true)
	entry := rec.GetEntry(job.Item.Spec)
	if entry == nil {
		kind := records.KindGeneric
		if info := s.mgr.Pipeline(job.SourceName); info != nil && info.Pipeline.EntryKind() != "" {
			kind = info.Pipeline.EntryKind()
		}
		entry = records.NewEntry(kind, job.Item.Spec)
		entry.Route = job.Route
		entry.AddError(msg)
		rec.AddEntry(entry)
	} else {
		entry.AddError(msg)
	}
	s.markFailed(rec)
}

// abandon records follow-up jobs that the pass limit prevents from running.
func (s *bakeState) abandon(jobs []*pipeline.Job, maxPasses int) {
	for _, job := range jobs {
		s.appendError(job, fmt.Sprintf("pass limit of %d reached, follow-up work not run", maxPasses))
	}
}

func (s *bakeState) markFailed(rec *records.Record) {
	rec.Success = false
	s.cur.Success = false
}
