// Package site assembles what a bake needs from a site root: configuration,
// content sources, cache regions and template search path.
package site

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/config"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/sources"
)

const configFingerprintKey = "config.fp"

// Site is an opened site.
type Site struct {
	Config        *config.Config
	Root          string
	Sources       []sources.Source
	Cache         *cache.Cache
	TemplatesDirs []string
	Debug         bool
}

// Open loads the configuration file and assembles the site around it.
func Open(configPath string, logger *slog.Logger) (*Site, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryConfig, "failed to load configuration").
			WithContext("path", configPath).Build()
	}
	return New(cfg, logger)
}

// New assembles a site from an already loaded configuration. The
// foundational and page cache regions are created up front.
func New(cfg *config.Config, logger *slog.Logger) (*Site, error) {
	srcs, err := sources.FromConfig(cfg, logger)
	if err != nil {
		return nil, err
	}
	s := &Site{
		Config:        cfg,
		Root:          cfg.Root,
		Sources:       srcs,
		Cache:         cache.New(cfg.CacheDir()),
		TemplatesDirs: cfg.ResolvedTemplatesDirs(),
		Debug:         cfg.Site.Debug,
	}
	for _, name := range []string{cache.App, cache.Baker, cache.Pages, cache.Renders} {
		if _, err := s.Cache.GetCache(name); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Source returns the named source, or nil.
func (s *Site) Source(name string) sources.Source {
	for _, src := range s.Sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}

// ConfigChanged reports whether the configuration differs from the one last
// stored by RecordConfig. Nothing stored yet reports false.
func (s *Site) ConfigChanged() (bool, error) {
	region, err := s.Cache.GetCache(cache.App)
	if err != nil {
		return false, err
	}
	prev, err := region.Read(configFingerprintKey)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(prev)) != s.Config.Fingerprint(), nil
}

// RecordConfig stores the current configuration fingerprint. Call it once
// the output built from this configuration has been persisted.
func (s *Site) RecordConfig() error {
	region, err := s.Cache.GetCache(cache.App)
	if err != nil {
		return err
	}
	return region.Write(configFingerprintKey, []byte(s.Config.Fingerprint()))
}

// Revision returns the HEAD commit of the git repository containing the
// site root, or "" when the site is not under git.
func (s *Site) Revision() string {
	repo, err := git.PlainOpenWithOptions(s.Root, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	head, err := repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// TemplateFiles walks the template dirs and calls fn for every regular file.
// Missing dirs are skipped.
func (s *Site) TemplateFiles(fn func(path string, info os.FileInfo) error) error {
	for _, dir := range s.TemplatesDirs {
		err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				if errors.Is(err, os.ErrNotExist) && p == dir {
					return filepath.SkipDir
				}
				return err
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			return fn(p, info)
		})
		if err != nil {
			return fmt.Errorf("walk templates %s: %w", dir, err)
		}
	}
	return nil
}
