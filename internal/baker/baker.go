// Package baker drives one bake of a site: it decides whether previous
// results can be trusted, fans jobs out to the worker pool realm by realm and
// pass by pass, folds results into the current record generation, and
// persists that generation.
package baker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/events"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/history"
	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/metrics"
	"git.home.luguber.info/inful/bakery/internal/pipeline"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/site"
	"git.home.luguber.info/inful/bakery/internal/sources"
	"git.home.luguber.info/inful/bakery/internal/workerpool"
)

// HistoryAppender stores bake summaries.
type HistoryAppender interface {
	Append(ctx context.Context, sum history.Summary) error
}

// Options configures a Baker. Zero values fall back to the site configuration.
type Options struct {
	Site *site.Site
	// SiteFactory builds the site each worker runs against. Defaults to
	// reassembling Site from its configuration.
	SiteFactory func() (*site.Site, error)

	OutDir           string
	Force            bool
	AllowedPipelines []string
	Workers          int
	// MaxPasses caps the passes per realm group, pass 0 included. 0 means unbounded.
	MaxPasses      int
	AssetURLFormat string
	RecordsSuffix  string

	Recorder  metrics.Recorder
	Publisher events.Publisher
	History   HistoryAppender
	Logger    *slog.Logger
	// Debug surfaces worker stack traces in the log.
	Debug bool
}

// Baker runs bakes for one site and output directory.
type Baker struct {
	opts   Options
	logger *slog.Logger
}

// New validates opts and fills in defaults.
func New(opts Options) (*Baker, error) {
	if opts.Site == nil || opts.Site.Config == nil {
		return nil, foundationerrors.ValidationError("site is required").Build()
	}
	cfg := opts.Site.Config
	if opts.OutDir == "" {
		opts.OutDir = cfg.OutputDir()
	}
	if opts.AllowedPipelines == nil {
		opts.AllowedPipelines = cfg.Baker.Pipelines
	}
	if opts.Workers <= 0 {
		opts.Workers = cfg.Baker.Workers
	}
	if opts.MaxPasses == 0 {
		opts.MaxPasses = cfg.Baker.MaxPasses
	}
	if opts.MaxPasses < 0 {
		return nil, foundationerrors.ValidationError("max passes must not be negative").
			WithContext("max_passes", opts.MaxPasses).Build()
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NoopPublisher{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.Debug {
		opts.Debug = opts.Site.Debug
	}
	if opts.SiteFactory == nil {
		s, logger := opts.Site, opts.Logger
		opts.SiteFactory = func() (*site.Site, error) { return site.New(s.Config, logger) }
	}
	return &Baker{opts: opts, logger: opts.Logger}, nil
}

// RecordsPath returns the records file of this baker's output directory.
func (b *Baker) RecordsPath() (string, error) {
	region, err := b.opts.Site.Cache.GetCache(cache.Baker)
	if err != nil {
		return "", err
	}
	return records.ComputeRecordsPath(region, b.opts.OutDir, b.opts.RecordsSuffix)
}

// Bake runs one bake. Item failures are recorded in the returned generation,
// whose Success flag is the overall outcome; an error is returned only for
// structural failures, in which case nothing is persisted.
func (b *Baker) Bake(ctx context.Context) (*records.MultiRecord, error) {
	start := time.Now()
	bakeID := uuid.NewString()
	logger := b.logger.With(logfields.BakeID(bakeID))
	b.publish(ctx, logger, events.Event{Type: events.BakeStarted, BakeID: bakeID, Time: start, OutDir: b.opts.OutDir})

	cur, run, err := b.bake(ctx, logger, bakeID, start)
	duration := time.Since(start)
	b.opts.Recorder.ObserveBakeDuration(duration)
	if err != nil {
		outcome := metrics.BakeFailed
		if ctx.Err() != nil {
			outcome = metrics.BakeAborted
		}
		b.opts.Recorder.IncBakeOutcome(outcome)
		logger.Error("Bake aborted", logfields.Error(err), logfields.Duration(duration))
		b.publish(ctx, logger, events.Event{Type: events.BakeFailed, BakeID: bakeID, OutDir: b.opts.OutDir, Duration: duration, Error: err.Error()})
		return cur, err
	}

	outcome, evType := metrics.BakeSuccess, events.BakeCompleted
	if !cur.Success {
		outcome, evType = metrics.BakeFailed, events.BakeFailed
	}
	b.opts.Recorder.IncBakeOutcome(outcome)
	b.opts.Recorder.AddStaleDeletions(len(run.deleted))

	sum := history.Summary{
		BakeID:           bakeID,
		StartedAt:        start,
		Duration:         duration,
		OutDir:           b.opts.OutDir,
		Success:          cur.Success,
		Entries:          cur.EntryCount(),
		FailedEntries:    cur.FailedEntryCount(),
		IncrementalCount: cur.IncrementalCount,
		InvalidReason:    run.invalidReason,
		StaleDeleted:     len(run.deleted),
		Passes:           run.passes,
		SourceRevision:   cur.SourceRevision,
		Counters:         cur.Stats.Counters,
	}
	if b.opts.History != nil {
		if herr := b.opts.History.Append(ctx, sum); herr != nil {
			logger.Warn("Failed to record bake history", logfields.Error(herr))
		}
	}
	b.publish(ctx, logger, events.Event{
		Type:          evType,
		BakeID:        bakeID,
		OutDir:        b.opts.OutDir,
		Success:       cur.Success,
		Entries:       sum.Entries,
		FailedEntries: sum.FailedEntries,
		Duration:      duration,
		Reason:        run.invalidReason,
	})

	logger.Info("Bake finished",
		slog.Bool("success", cur.Success),
		slog.Int("entries", sum.Entries),
		slog.Int("failed", sum.FailedEntries),
		slog.Int("incremental_count", cur.IncrementalCount),
		slog.Int("passes", run.passes),
		logfields.Duration(duration))
	return cur, nil
}

// runInfo carries per-bake facts reported after persisting.
type runInfo struct {
	invalidReason string
	deleted       []string
	passes        int
}

func (b *Baker) bake(ctx context.Context, logger *slog.Logger, bakeID string, start time.Time) (*records.MultiRecord, *runInfo, error) {
	s := b.opts.Site
	run := &runInfo{}
	force := b.opts.Force

	// Init
	if err := os.MkdirAll(b.opts.OutDir, 0o750); err != nil {
		return nil, nil, foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to create output directory").
			WithContext("out_dir", b.opts.OutDir).Fatal().Build()
	}
	recordsPath, err := b.RecordsPath()
	if err != nil {
		return nil, nil, foundationerrors.WrapError(err, foundationerrors.CategoryRecords, "failed to compute records path").Fatal().Build()
	}
	prev := records.NewMultiRecord()
	if !force {
		prev = loadPrevious(recordsPath, logger)
	}

	cur := records.NewMultiRecord()
	cur.BakeID = bakeID
	// Start time, so templates edited while baking invalidate the next bake.
	cur.BakeTime = start
	cur.OutDir = b.opts.OutDir
	cur.SourceRevision = s.Revision()

	// CacheValidity
	reason, err := b.invalidReason(prev, force)
	if err != nil {
		return nil, nil, err
	}
	if reason != "" {
		logger.Info("Cache invalidated, rebuilding everything", logfields.Reason(reason))
		b.opts.Recorder.IncCacheInvalidation(reason)
		if err := s.Cache.ClearCaches(cache.Foundational...); err != nil {
			return nil, nil, err
		}
		force = true
		prev = records.NewMultiRecord()
		cur.IncrementalCount = 0
		run.invalidReason = reason
	} else {
		cur.IncrementalCount = prev.IncrementalCount + 1
		logger.Info("Cache valid, baking incrementally", slog.Int("incremental_count", cur.IncrementalCount))
	}

	// PipelineSetup
	hist := records.NewHistory(prev, cur)
	env := &pipeline.Env{
		OutDir:         b.opts.OutDir,
		Site:           s.Config.Site,
		TemplatesDirs:  s.TemplatesDirs,
		Cache:          s.Cache,
		Force:          force,
		AssetURLFormat: b.opts.AssetURLFormat,
		Logger:         logger,
	}
	mgr := pipeline.NewManager(env, hist, b.opts.AllowedPipelines)
	for _, src := range s.Sources {
		_, err := mgr.CreatePipeline(src)
		switch {
		case err == nil:
		case errors.Is(err, pipeline.ErrPipelineExcluded):
			logger.Debug("Skipping source excluded by pipeline filter", logfields.Source(src.Name()))
			if r := prev.GetRecord(src.Name(), false); r != nil {
				cur.Records[r.Name] = r
			}
		default:
			return nil, nil, foundationerrors.WrapError(err, foundationerrors.CategoryPipeline, "failed to create pipeline").
				WithContext("source", src.Name()).Fatal().Build()
		}
	}
	if len(mgr.Pipelines()) == 0 {
		return nil, nil, foundationerrors.ValidationError("nothing to do: no content source resolves to an allowed pipeline").
			WithContext("allowed", b.opts.AllowedPipelines).Build()
	}

	state := newBakeState(cur, mgr, b.opts.Recorder, logger, b.opts.Debug)
	pool, err := workerpool.New(ctx, b.workerFactory(recordsPath, force, logger), workerpool.Options{
		Workers:  b.opts.Workers,
		OnResult: state.onResult,
		OnError:  state.onError,
		Logger:   logger,
	})
	if err != nil {
		_ = mgr.ShutdownPipelines()
		return nil, nil, foundationerrors.WrapError(err, foundationerrors.CategoryWorker, "failed to start workers").Fatal().Build()
	}
	b.opts.Recorder.SetWorkers(pool.Size())
	logger.Info("Baking",
		logfields.OutDir(b.opts.OutDir),
		slog.Int("workers", pool.Size()),
		slog.Int("pipelines", len(mgr.Pipelines())),
		slog.Bool("force", force))

	// Pass0Dispatch and FollowUpLoop
	if err := b.dispatch(ctx, state, pool, mgr); err != nil {
		_, _ = pool.Close()
		_ = mgr.ShutdownPipelines()
		return nil, nil, err
	}
	run.passes = state.passes

	// Finalize
	mgr.BuildHistoryDiffs()
	run.deleted, err = mgr.DeleteStaleOutputs()
	if err != nil {
		logger.Warn("Some stale outputs could not be deleted", logfields.Error(err))
	}
	mgr.CollapseRecords()
	workerStats, err := pool.Close()
	if err != nil {
		logger.Warn("Worker shutdown reported errors", logfields.Error(err))
	}
	for _, ws := range workerStats {
		cur.Stats.MergeStats(ws)
	}
	if err := mgr.ShutdownPipelines(); err != nil {
		logger.Warn("Pipeline shutdown reported errors", logfields.Error(err))
	}
	cur.Stats.StepCounter("stale_deleted", len(run.deleted))
	cur.Stats.StepCounter("passes", run.passes)
	cur.Stats.TimeSince("bake", start)
	cur.Recompute()

	// Persist
	if err := persist(cur, recordsPath); err != nil {
		return cur, run, err
	}
	if err := b.opts.Site.RecordConfig(); err != nil {
		logger.Warn("Failed to store configuration fingerprint", logfields.Error(err))
	}
	return cur, run, nil
}

// dispatch runs every pass bucket in ascending order and, within it, every
// realm in precedence order.
func (b *Baker) dispatch(ctx context.Context, state *bakeState, pool *workerpool.Pool, mgr *pipeline.Manager) error {
	for _, bucket := range mgr.PassBuckets() {
		for _, realm := range sources.Realms {
			infos := mgr.PipelinesFor(bucket, realm)
			if len(infos) == 0 {
				continue
			}
			if err := b.bakeRealm(ctx, state, pool, infos, realm); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Baker) bakeRealm(ctx context.Context, state *bakeState, pool *workerpool.Pool, infos []*pipeline.Info, realm sources.Realm) error {
	logger := state.logger.With(logfields.Realm(string(realm)))

	jobs, err := state.createJobs(infos)
	if err != nil {
		return err
	}
	state.beginPass(0)
	if err := b.runPass(ctx, state, pool, jobs, realm); err != nil {
		return err
	}

	for pass := 1; ; pass++ {
		next := state.takeNextPassJobs()
		if len(next) == 0 {
			return nil
		}
		if b.opts.MaxPasses > 0 && pass >= b.opts.MaxPasses {
			logger.Warn("Pass limit reached, dropping follow-up jobs",
				slog.Int("max_passes", b.opts.MaxPasses), slog.Int("jobs", len(next)))
			state.abandon(next, b.opts.MaxPasses)
			return nil
		}
		for _, j := range next {
			j.Pass = pass
		}
		state.beginPass(pass)
		if err := b.runPass(ctx, state, pool, next, realm); err != nil {
			return err
		}
	}
}

func (b *Baker) runPass(ctx context.Context, state *bakeState, pool *workerpool.Pool, jobs []*pipeline.Job, realm sources.Realm) error {
	if err := ctx.Err(); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRuntime, "bake canceled").
			WithContext("pass", state.curPass).Build()
	}
	started := time.Now()
	state.logger.Debug("Dispatching pass",
		logfields.Realm(string(realm)), logfields.Pass(state.curPass), slog.Int("jobs", len(jobs)))
	if err := pool.QueueJobs(jobs); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryWorker, "failed to queue jobs").Fatal().Build()
	}
	pool.Wait()
	b.opts.Recorder.ObservePassDuration(string(realm), state.curPass, time.Since(started))
	return nil
}

// loadPrevious reads the previous generation. Problems only mean there is
// nothing to reuse.
func loadPrevious(path string, logger *slog.Logger) *records.MultiRecord {
	prev, err := records.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("No previous bake records", logfields.Path(path))
	default:
		logger.Warn("Previous bake records are unusable", logfields.Path(path), logfields.Error(err))
	}
	return prev
}

// persist rotates the backups and writes cur as the primary generation.
func persist(cur *records.MultiRecord, path string) error {
	if err := records.RotateBackups(path); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRecords, "failed to rotate record backups").
			WithContext("path", path).Build()
	}
	if err := cur.Save(path); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRecords, "failed to save bake records").
			WithContext("path", path).Build()
	}
	return nil
}

func (b *Baker) publish(ctx context.Context, logger *slog.Logger, ev events.Event) {
	if err := b.opts.Publisher.Publish(ctx, ev); err != nil {
		logger.Warn("Failed to publish bake event", slog.String("type", string(ev.Type)), logfields.Error(err))
	}
}
