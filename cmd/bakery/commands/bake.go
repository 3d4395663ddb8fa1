package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/bakery/internal/baker"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/metrics"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/site"
)

// BakeCmd implements the 'bake' command.
type BakeCmd struct {
	Output         string   `short:"o" help:"Output directory (defaults to baker.output_dir)"`
	Force          bool     `short:"f" help:"Ignore previous records and rebuild everything"`
	Pipelines      []string `help:"Only run these pipelines (page, asset)" sep:","`
	Workers        int      `short:"w" help:"Number of workers (defaults to baker.workers)"`
	MaxPasses      int      `name:"max-passes" help:"Cap on passes per realm group, 0 for unbounded"`
	AssetURLFormat string   `name:"asset-url-format" help:"Asset URL format; %uri% is replaced by the asset path"`
	RecordsSuffix  string   `name:"records-suffix" help:"Suffix distinguishing record files of the same output directory"`
}

func (b *BakeCmd) Run(root *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := root.OpenSite()
	if err != nil {
		return err
	}
	cur, err := b.bake(ctx, root, s, metrics.NoopRecorder{})
	if err != nil {
		return err
	}
	fmt.Printf("Baked %d entries into %s (%d failed, incremental #%d)\n",
		cur.EntryCount(), cur.OutDir, cur.FailedEntryCount(), cur.IncrementalCount)
	if !cur.Success {
		return foundationerrors.BuildError("bake finished with failed items").
			WithContext("failed", cur.FailedEntryCount()).Build()
	}
	return nil
}

// bake runs one bake of s with the command's overrides.
func (b *BakeCmd) bake(ctx context.Context, root *CLI, s *site.Site, recorder metrics.Recorder) (*records.MultiRecord, error) {
	logger := root.Logger()
	cfg := s.Config

	store := openHistory(cfg, logger)
	if store != nil {
		defer func() { _ = store.Close() }()
	}
	pub := openPublisher(ctx, cfg, logger)
	defer func() { _ = pub.Close() }()

	opts := baker.Options{
		Site:             s,
		OutDir:           ResolveOutputDir(b.Output, cfg),
		Force:            b.Force,
		AllowedPipelines: b.Pipelines,
		Workers:          b.Workers,
		MaxPasses:        b.MaxPasses,
		AssetURLFormat:   b.AssetURLFormat,
		RecordsSuffix:    b.RecordsSuffix,
		Recorder:         recorder,
		Publisher:        pub,
		Logger:           logger,
		Debug:            root.Verbose,
	}
	if store != nil {
		opts.History = store
	}
	bk, err := baker.New(opts)
	if err != nil {
		return nil, err
	}
	return bk.Bake(ctx)
}
