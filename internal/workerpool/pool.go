// Package workerpool runs bake jobs on a fixed set of long-lived workers.
//
// Workers execute jobs in parallel. Results come back to the goroutine that
// calls Wait, which invokes the callbacks one at a time, so callback bodies
// may mutate orchestrator state without locking.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/pipeline"
	"git.home.luguber.info/inful/bakery/internal/stats"
)

// ErrClosed is returned when jobs are queued on a closed pool.
var ErrClosed = errors.New("worker pool is closed")

// Worker executes jobs. Initialize runs once before the first job; all
// methods of one Worker are called from a single goroutine.
type Worker interface {
	Initialize(ctx context.Context) error
	Process(ctx context.Context, job *pipeline.Job) (*pipeline.JobResult, error)
	Stats() *stats.ExecutionStats
	Shutdown() error
}

// Factory builds the worker for slot id.
type Factory func(id int) (Worker, error)

// Failure describes a job that did not produce a result.
type Failure struct {
	Message string
	Trace   string
}

func (f *Failure) Error() string { return f.Message }

// ResultFunc receives a finished job and its result.
type ResultFunc func(job *pipeline.Job, res *pipeline.JobResult)

// ErrorFunc receives a job that failed or panicked.
type ErrorFunc func(job *pipeline.Job, failure *Failure)

// Options configures a Pool.
type Options struct {
	// Workers defaults to runtime.NumCPU().
	Workers  int
	OnResult ResultFunc
	OnError  ErrorFunc
	Logger   *slog.Logger
}

type outcome struct {
	job     *pipeline.Job
	result  *pipeline.JobResult
	failure *Failure
}

type slot struct {
	id     int
	worker Worker
}

// Pool is a fixed-size worker pool with a pass barrier.
type Pool struct {
	opts   Options
	logger *slog.Logger

	jobs    chan *pipeline.Job
	results chan outcome
	slots   []*slot

	workersWG sync.WaitGroup
	feedersWG sync.WaitGroup

	// pending and closed are owned by the orchestrator goroutine.
	pending int
	closed  bool
}

// New starts the workers and waits for each to initialize. Slots whose
// factory or Initialize fails are logged and left out. It fails only when no
// worker could start.
func New(ctx context.Context, factory Factory, opts Options) (*Pool, error) {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		opts:    opts,
		logger:  logger,
		jobs:    make(chan *pipeline.Job),
		results: make(chan outcome, opts.Workers),
	}

	type ready struct {
		slot *slot
		err  error
	}
	readyCh := make(chan ready, opts.Workers)
	for id := range opts.Workers {
		go func() {
			w, err := factory(id)
			if err == nil {
				if err = w.Initialize(ctx); err != nil {
					_ = w.Shutdown()
				}
			}
			if err != nil {
				readyCh <- ready{err: fmt.Errorf("worker %d: %w", id, err)}
				return
			}
			readyCh <- ready{slot: &slot{id: id, worker: w}}
		}()
	}

	var initErrs []error
	for range opts.Workers {
		r := <-readyCh
		if r.err != nil {
			logger.Error("Worker failed to initialize", logfields.Error(r.err))
			initErrs = append(initErrs, r.err)
			continue
		}
		p.slots = append(p.slots, r.slot)
	}
	if len(p.slots) == 0 {
		return nil, fmt.Errorf("no worker could be started: %w", errors.Join(initErrs...))
	}

	for _, s := range p.slots {
		p.workersWG.Add(1)
		go p.run(ctx, s)
	}
	logger.Debug("Worker pool started", slog.Int("workers", len(p.slots)))
	return p, nil
}

// Size returns the number of running workers.
func (p *Pool) Size() int { return len(p.slots) }

// QueueJobs enqueues jobs without blocking. Jobs run on any idle worker, in
// any order.
func (p *Pool) QueueJobs(jobs []*pipeline.Job) error {
	if p.closed {
		return ErrClosed
	}
	if len(jobs) == 0 {
		return nil
	}
	p.pending += len(jobs)
	p.feedersWG.Add(1)
	go func() {
		defer p.feedersWG.Done()
		for _, j := range jobs {
			p.jobs <- j
		}
	}()
	return nil
}

// Wait blocks until every job queued so far has been reported, invoking
// the callbacks on the calling goroutine as results arrive.
func (p *Pool) Wait() {
	for p.pending > 0 {
		o := <-p.results
		p.pending--
		if o.failure != nil {
			if p.opts.OnError != nil {
				p.opts.OnError(o.job, o.failure)
			}
			continue
		}
		if p.opts.OnResult != nil {
			p.opts.OnResult(o.job, o.result)
		}
	}
}

// Close drains outstanding jobs, stops the workers and returns the
// statistics of every worker that ran. Calling Close twice returns ErrClosed.
func (p *Pool) Close() ([]*stats.ExecutionStats, error) {
	if p.closed {
		return nil, ErrClosed
	}
	p.Wait()
	p.closed = true
	p.feedersWG.Wait()
	close(p.jobs)
	p.workersWG.Wait()

	out := make([]*stats.ExecutionStats, 0, len(p.slots))
	var errs []error
	for _, s := range p.slots {
		if st := s.worker.Stats(); st != nil {
			out = append(out, st)
		}
		if err := s.worker.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("worker %d shutdown: %w", s.id, err))
		}
	}
	p.logger.Debug("Worker pool closed", slog.Int("workers", len(p.slots)))
	return out, errors.Join(errs...)
}

func (p *Pool) run(ctx context.Context, s *slot) {
	defer p.workersWG.Done()
	var (
		count int
		busy  time.Duration
	)
	for job := range p.jobs {
		start := time.Now()
		o := p.process(ctx, s, job)
		busy += time.Since(start)
		count++
		p.results <- o
	}
	if st := s.worker.Stats(); st != nil {
		st.StepCounter("worker_jobs", count)
		st.StepTimer("worker_busy", busy)
	}
}

func (p *Pool) process(ctx context.Context, s *slot, job *pipeline.Job) (o outcome) {
	o.job = job
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panicked", logfields.Worker(s.id), logfields.JobID(job.ID), slog.Any("panic", r))
			o.result = nil
			o.failure = &Failure{Message: fmt.Sprintf("panic: %v", r), Trace: string(debug.Stack())}
		}
	}()

	res, err := s.worker.Process(ctx, job)
	switch {
	case err != nil:
		o.failure = &Failure{Message: err.Error()}
	case res == nil || res.Entry == nil:
		o.failure = &Failure{Message: "worker returned no result"}
	default:
		o.result = res
	}
	return o
}
