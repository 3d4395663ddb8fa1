package config

import (
	"path/filepath"
	"runtime"
	"time"
)

const (
	defaultOutputDir = "_counter"
	defaultCacheDir  = "_cache"
	defaultDebounce  = 2 * time.Second
	defaultSubject   = "bakery.bakes"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config) error
	Domain() string
}

type siteDefaults struct{}

func (siteDefaults) Domain() string { return "site" }

func (siteDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Site.Title == "" {
		cfg.Site.Title = "Untitled Site"
	}
	if cfg.Site.Root == "" {
		cfg.Site.Root = "/"
	}
	if len(cfg.Site.Formats) == 0 {
		cfg.Site.Formats = []string{"md", "markdown", "html"}
	}
	if cfg.Site.DefaultFormat == "" {
		cfg.Site.DefaultFormat = cfg.Site.Formats[0]
	}
	return nil
}

type bakerDefaults struct{}

func (bakerDefaults) Domain() string { return "baker" }

func (bakerDefaults) ApplyDefaults(cfg *Config) error {
	if cfg.Baker.Workers == 0 {
		cfg.Baker.Workers = runtime.NumCPU()
	}
	if cfg.Baker.OutputDir == "" {
		cfg.Baker.OutputDir = defaultOutputDir
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = defaultCacheDir
	}
	if len(cfg.TemplatesDirs) == 0 {
		cfg.TemplatesDirs = []string{"templates"}
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.Cache.Dir, "history.db")
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = defaultSubject
	}
	return nil
}

type sourceDefaults struct{}

func (sourceDefaults) Domain() string { return "sources" }

func (sourceDefaults) ApplyDefaults(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		cfg.Sources = []SourceConfig{
			{Name: "pages", Type: SourceTypePages, FSEndpoint: "pages", IgnoreMissingDir: true},
			{Name: "posts", Type: SourceTypePostsFlat, FSEndpoint: "posts", IgnoreMissingDir: true},
			{Name: "assets", Type: SourceTypeAssets, FSEndpoint: "assets", IgnoreMissingDir: true},
		}
	}
	for i := range cfg.Sources {
		s := &cfg.Sources[i]
		if s.Realm == "" {
			s.Realm = RealmUser
		}
		if s.FSEndpoint == "" {
			s.FSEndpoint = s.Name
		}
	}
	if cfg.Theme.Dir != "" {
		themeDir := cfg.Resolve(cfg.Theme.Dir)
		cfg.Sources = append(cfg.Sources,
			SourceConfig{
				Name: "theme_pages", Type: SourceTypePages, Realm: RealmTheme,
				FSEndpoint: filepath.Join(themeDir, "pages"), IgnoreMissingDir: true,
			},
			SourceConfig{
				Name: "theme_assets", Type: SourceTypeAssets, Realm: RealmTheme,
				FSEndpoint: filepath.Join(themeDir, "assets"), IgnoreMissingDir: true,
			},
		)
	}
	return nil
}

func applyDefaults(cfg *Config) error {
	appliers := []DefaultApplier{siteDefaults{}, bakerDefaults{}, sourceDefaults{}}
	for _, a := range appliers {
		if err := a.ApplyDefaults(cfg); err != nil {
			return err
		}
	}
	return nil
}
