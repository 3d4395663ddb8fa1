package baker

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/pipeline"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/site"
	"git.home.luguber.info/inful/bakery/internal/stats"
	"git.home.luguber.info/inful/bakery/internal/workerpool"
)

// WorkerContext is the immutable setup every worker receives.
type WorkerContext struct {
	OutDir           string
	RecordsPath      string
	Force            bool
	AllowedPipelines []string
	AssetURLFormat   string
	SiteFactory      func() (*site.Site, error)
	Logger           *slog.Logger
}

// BakeWorker runs jobs against its own site, pipelines and copy of the
// previous generation.
type BakeWorker struct {
	id     int
	wc     WorkerContext
	logger *slog.Logger

	pipelines map[string]pipeline.Pipeline
	previous  *records.MultiRecord
	stats     *stats.ExecutionStats
}

// NewBakeWorker returns an uninitialized worker for slot id.
func NewBakeWorker(id int, wc WorkerContext) *BakeWorker {
	logger := wc.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BakeWorker{id: id, wc: wc, logger: logger.With(logfields.Worker(id)), stats: stats.New()}
}

func (b *Baker) workerFactory(recordsPath string, force bool, logger *slog.Logger) workerpool.Factory {
	wc := WorkerContext{
		OutDir:           b.opts.OutDir,
		RecordsPath:      recordsPath,
		Force:            force,
		AllowedPipelines: b.opts.AllowedPipelines,
		AssetURLFormat:   b.opts.AssetURLFormat,
		SiteFactory:      b.opts.SiteFactory,
		Logger:           logger,
	}
	return func(id int) (workerpool.Worker, error) {
		return NewBakeWorker(id, wc), nil
	}
}

// Initialize assembles the site, loads the previous records unless forced and
// creates one pipeline per allowed source.
func (w *BakeWorker) Initialize(_ context.Context) error {
	s, err := w.wc.SiteFactory()
	if err != nil {
		return fmt.Errorf("open site: %w", err)
	}

	w.previous = records.NewMultiRecord()
	if !w.wc.Force && w.wc.RecordsPath != "" {
		// Load always returns a usable generation.
		w.previous, _ = records.Load(w.wc.RecordsPath)
	}

	env := &pipeline.Env{
		OutDir:         w.wc.OutDir,
		Site:           s.Config.Site,
		TemplatesDirs:  s.TemplatesDirs,
		Cache:          s.Cache,
		Force:          w.wc.Force,
		AssetURLFormat: w.wc.AssetURLFormat,
		Logger:         w.logger,
	}
	w.pipelines = make(map[string]pipeline.Pipeline, len(s.Sources))
	for _, src := range s.Sources {
		name := pipeline.NameForSource(src)
		if len(w.wc.AllowedPipelines) > 0 && !slices.Contains(w.wc.AllowedPipelines, name) {
			continue
		}
		p, err := pipeline.New(name, src, env)
		if err != nil {
			return err
		}
		w.pipelines[src.Name()] = p
	}
	w.logger.Debug("Worker initialized", slog.Int("pipelines", len(w.pipelines)))
	return nil
}

// Process runs job with the pipeline of its source.
func (w *BakeWorker) Process(ctx context.Context, job *pipeline.Job) (*pipeline.JobResult, error) {
	p, ok := w.pipelines[job.SourceName]
	if !ok {
		return nil, fmt.Errorf("no pipeline for source %s", job.SourceName)
	}
	prev := w.previous.GetRecord(job.RecordName, false).GetEntry(job.Item.Spec)
	return p.Run(ctx, job, &pipeline.RunContext{Previous: prev, Stats: w.stats})
}

// Stats returns the statistics gathered by this worker.
func (w *BakeWorker) Stats() *stats.ExecutionStats { return w.stats }

// Shutdown releases the worker's pipelines.
func (w *BakeWorker) Shutdown() error {
	var firstErr error
	for _, p := range w.pipelines {
		if err := p.Shutdown(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
