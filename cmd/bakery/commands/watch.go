package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/bakery/internal/api"
	"git.home.luguber.info/inful/bakery/internal/history"
	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/metrics"
	"git.home.luguber.info/inful/bakery/internal/watch"
)

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	BakeCmd     `embed:""`
	Interval    time.Duration `help:"Also rebake on this interval (defaults to watch.interval)"`
	Debounce    time.Duration `help:"Quiet period before a change triggers a bake (defaults to watch.debounce)"`
	MetricsAddr string        `name:"metrics-addr" help:"Serve /health, /bakes and /metrics on this address (defaults to metrics.listen_addr)"`
}

func (w *WatchCmd) Run(root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger := root.Logger()

	s, err := root.OpenSite()
	if err != nil {
		return err
	}
	cfg := s.Config
	interval := w.Interval
	if interval == 0 {
		interval = cfg.Watch.IntervalDuration()
	}
	debounce := w.Debounce
	if debounce == 0 {
		debounce = cfg.Watch.DebounceDuration()
	}
	addr := w.MetricsAddr
	if addr == "" {
		addr = cfg.Metrics.ListenAddr
	}

	reg := prom.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)
	if addr != "" {
		opts := api.Options{Metrics: metrics.HTTPHandler(reg), Logger: logger}
		if cfg.History.Enabled {
			store, err := history.Open(historyPath(cfg))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			opts.Bakes = store
		}
		srv := api.NewServer(addr, opts)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Status server failed", logfields.Error(err))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
	}

	trees := make([]string, 0, len(s.Sources)+len(s.TemplatesDirs))
	for _, src := range s.Sources {
		trees = append(trees, src.Endpoint())
	}
	trees = append(trees, s.TemplatesDirs...)

	runner := watch.NewRunner(watch.Options{
		Trees:    trees,
		Files:    []string{root.ConfigPath()},
		Ignore:   []string{ResolveOutputDir(w.Output, cfg), cfg.CacheDir()},
		Debounce: debounce,
		Interval: interval,
		Logger:   logger,
		Bake: func(ctx context.Context, _ string) error {
			// Reopen so configuration edits take effect.
			s, err := root.OpenSite()
			if err != nil {
				return err
			}
			cur, err := w.bake(ctx, root, s, recorder)
			if err != nil {
				return err
			}
			if !cur.Success {
				return errors.New("bake finished with failed items")
			}
			return nil
		},
	})
	return runner.Run(ctx)
}
