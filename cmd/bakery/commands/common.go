// Package commands implements the bakery CLI subcommands.
package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/bakery/internal/config"
	"git.home.luguber.info/inful/bakery/internal/events"
	"git.home.luguber.info/inful/bakery/internal/history"
	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/site"
)

// CLI definition & global flags.
type CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"config.yaml"`
	Root    string `help:"Site root; a relative --config resolves against it" type:"path"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Bake    BakeCmd    `cmd:"" help:"Bake the site into the output directory"`
	Records RecordsCmd `cmd:"" help:"Show or diff stored bake records"`
	History HistoryCmd `cmd:"" help:"List recent bake summaries"`
	Prepare PrepareCmd `cmd:"" help:"Create a new content item in a source"`
	Watch   WatchCmd   `cmd:"" help:"Rebake whenever content, templates or configuration change"`
	Version VersionCmd `cmd:"" help:"Print version information"`

	logger *slog.Logger
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(c.Verbose)}))
	slog.SetDefault(c.logger)
	return nil
}

// parseLogLevel honours --verbose, then BAKERY_LOG_LEVEL.
func parseLogLevel(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	switch strings.ToLower(os.Getenv("BAKERY_LOG_LEVEL")) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger returns the configured logger.
func (c *CLI) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// ConfigPath resolves --config against --root.
func (c *CLI) ConfigPath() string {
	if c.Root != "" && !filepath.IsAbs(c.Config) {
		return filepath.Join(c.Root, c.Config)
	}
	return c.Config
}

// OpenSite loads the configuration and assembles the site.
func (c *CLI) OpenSite() (*site.Site, error) {
	return site.Open(c.ConfigPath(), c.Logger())
}

// ResolveOutputDir applies the --output override. Relative paths are taken
// from the working directory, like any other CLI path.
func ResolveOutputDir(cliOutput string, cfg *config.Config) string {
	if cliOutput == "" {
		return cfg.OutputDir()
	}
	if abs, err := filepath.Abs(cliOutput); err == nil {
		return abs
	}
	return cliOutput
}

// historyPath returns the bake history database of cfg.
func historyPath(cfg *config.Config) string {
	if cfg.History.Path != "" {
		return cfg.Resolve(cfg.History.Path)
	}
	return filepath.Join(cfg.CacheDir(), "history.db")
}

// openHistory opens the history store when enabled in cfg.
func openHistory(cfg *config.Config, logger *slog.Logger) *history.Store {
	if !cfg.History.Enabled {
		return nil
	}
	store, err := history.Open(historyPath(cfg))
	if err != nil {
		logger.Warn("Bake history unavailable", logfields.Error(err))
		return nil
	}
	return store
}

// openPublisher connects the event publisher when enabled in cfg.
func openPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) events.Publisher {
	if !cfg.Events.Enabled {
		return events.NoopPublisher{}
	}
	p, err := events.NewNATSPublisher(ctx, cfg.Events)
	if err != nil {
		logger.Warn("Bake events unavailable", logfields.Error(err))
		return events.NoopPublisher{}
	}
	return p
}
