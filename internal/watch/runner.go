// Package watch rebakes a site when its content, templates or configuration
// change, and optionally on a fixed interval.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/bakery/internal/logfields"
)

// BakeFunc runs one bake.
type BakeFunc func(ctx context.Context, reason string) error

// Options configures a Runner.
type Options struct {
	// Trees are directories watched recursively (content endpoints, template dirs).
	Trees []string
	// Files are single files watched for changes, e.g. the configuration file.
	Files []string
	// Ignore lists directories whose changes never trigger a bake (output, cache).
	Ignore   []string
	Debounce time.Duration
	// Interval schedules periodic rebakes; zero disables them.
	Interval time.Duration
	Bake     BakeFunc
	Logger   *slog.Logger
}

// Runner serializes bakes requested by file changes and the scheduler.
// Requests arriving while a bake runs are coalesced into one follow-up bake.
type Runner struct {
	opts     Options
	logger   *slog.Logger
	requests chan string
}

// NewRunner creates a runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 2 * time.Second
	}
	return &Runner{opts: opts, logger: logger, requests: make(chan string, 1)}
}

// Trigger requests a bake. It never blocks.
func (r *Runner) Trigger(reason string) {
	select {
	case r.requests <- reason:
	default:
	}
}

// Run bakes once, then on every trigger until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ignore := make([]string, 0, len(r.opts.Ignore))
	for _, p := range r.opts.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			ignore = append(ignore, abs)
		}
	}
	fw, err := newFileWatcher(r.opts.Debounce, ignore, r.Trigger, r.logger)
	if err != nil {
		return err
	}
	defer func() { _ = fw.close() }()
	for _, t := range r.opts.Trees {
		if err := fw.addTree(t); err != nil {
			return err
		}
	}
	for _, f := range r.opts.Files {
		if err := fw.addFile(f); err != nil {
			return err
		}
	}

	if r.opts.Interval > 0 {
		sched, err := NewScheduler()
		if err != nil {
			return err
		}
		if _, err := sched.ScheduleEvery("periodic-bake", r.opts.Interval, func() { r.Trigger("scheduled") }); err != nil {
			return err
		}
		sched.Start()
		defer func() {
			if err := sched.Stop(); err != nil {
				r.logger.Warn("Scheduler shutdown failed", logfields.Error(err))
			}
		}()
	}

	go fw.run(ctx)
	r.logger.Info("Watching for changes",
		slog.Int("trees", len(r.opts.Trees)),
		slog.Duration("debounce", r.opts.Debounce),
		slog.Duration("interval", r.opts.Interval))

	r.bake(ctx, "startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-r.requests:
			r.bake(ctx, reason)
		}
	}
}

func (r *Runner) bake(ctx context.Context, reason string) {
	r.logger.Info("Rebaking", logfields.Reason(reason))
	if err := r.opts.Bake(ctx, reason); err != nil {
		r.logger.Error("Bake failed", logfields.Reason(reason), logfields.Error(err))
	}
}
