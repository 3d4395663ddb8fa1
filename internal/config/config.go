// Package config loads and validates the site configuration consumed by the bake engine.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/bakery/internal/version"
)

// DefaultFileName is the configuration file looked up at the site root.
const DefaultFileName = "config.yaml"

// Source types understood by the sources package.
const (
	SourceTypePages          = "pages"
	SourceTypeAssets         = "assets"
	SourceTypePostsFlat      = "posts/flat"
	SourceTypePostsShallow   = "posts/shallow"
	SourceTypePostsHierarchy = "posts/hierarchy"
)

// Realm names. User content overrides theme content.
const (
	RealmUser  = "user"
	RealmTheme = "theme"
)

// Config represents the site configuration.
type Config struct {
	Site          SiteConfig     `yaml:"site"`
	Baker         BakerConfig    `yaml:"baker"`
	Sources       []SourceConfig `yaml:"sources"`
	Theme         ThemeConfig    `yaml:"theme"`
	TemplatesDirs []string       `yaml:"templates_dirs"`
	Cache         CacheConfig    `yaml:"cache"`
	History       HistoryConfig  `yaml:"history"`
	Events        EventsConfig   `yaml:"events"`
	Metrics       MetricsConfig  `yaml:"metrics"`
	Watch         WatchConfig    `yaml:"watch"`

	// Root is the site root directory; relative paths resolve against it.
	Root string `yaml:"-"`

	raw []byte
}

// SiteConfig holds site-wide settings visible to rendering.
type SiteConfig struct {
	Title         string         `yaml:"title"`
	Root          string         `yaml:"root"` // URL root, e.g. "/" or "/blog/"
	Debug         bool           `yaml:"debug"`
	DefaultFormat string         `yaml:"default_format"`
	Formats       []string       `yaml:"formats"` // file extensions treated as pages
	Params        map[string]any `yaml:"params,omitempty"`
}

// BakerConfig controls the bake orchestrator.
type BakerConfig struct {
	Workers   int      `yaml:"workers"`
	MaxPasses int      `yaml:"max_passes"` // 0 = unbounded
	OutputDir string   `yaml:"output_dir"`
	Pipelines []string `yaml:"pipelines,omitempty"` // allowed pipelines; empty = all
}

// SourceConfig declares one content source.
type SourceConfig struct {
	Name             string `yaml:"name"`
	Type             string `yaml:"type"`
	FSEndpoint       string `yaml:"fs_endpoint"`
	Realm            string `yaml:"realm"`
	Pipeline         string `yaml:"pipeline,omitempty"`
	IgnoreMissingDir bool   `yaml:"ignore_missing_dir"`
}

// ThemeConfig points at an optional theme directory.
type ThemeConfig struct {
	Dir string `yaml:"dir"`
}

// CacheConfig locates the cache regions.
type CacheConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig controls the sqlite bake history log.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// EventsConfig controls publication of bake events to NATS.
type EventsConfig struct {
	Enabled bool   `yaml:"enabled"`
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	// Retries is the number of extra publish attempts after a failure.
	Retries int `yaml:"retries"`
}

// MetricsConfig controls the status/metrics HTTP listener.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// WatchConfig controls the watch command.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
	Interval string `yaml:"interval"`
}

// DebounceDuration parses Debounce, falling back to the default.
func (w WatchConfig) DebounceDuration() time.Duration {
	if d, err := time.ParseDuration(w.Debounce); err == nil && d > 0 {
		return d
	}
	return defaultDebounce
}

// IntervalDuration parses Interval; zero disables periodic rebakes.
func (w WatchConfig) IntervalDuration() time.Duration {
	d, err := time.ParseDuration(w.Interval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

// Load loads configuration from the specified file. The site root defaults to
// the directory containing the file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles(filepath.Dir(configPath))

	// #nosec G304 -- path comes from the operator
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s", configPath)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	root, err := filepath.Abs(filepath.Dir(configPath))
	if err != nil {
		return nil, fmt.Errorf("resolve site root: %w", err)
	}
	return Parse(data, root)
}

// Parse decodes raw YAML (after ${VAR} expansion), applies defaults and validates.
func Parse(data []byte, root string) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Root = root
	cfg.raw = data

	if err := applyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Resolve makes p absolute relative to the site root.
func (c *Config) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// OutputDir returns the absolute bake output directory.
func (c *Config) OutputDir() string {
	return c.Resolve(c.Baker.OutputDir)
}

// CacheDir returns the absolute cache directory.
func (c *Config) CacheDir() string {
	return c.Resolve(c.Cache.Dir)
}

// ResolvedTemplatesDirs returns the template search path, user dirs first.
func (c *Config) ResolvedTemplatesDirs() []string {
	dirs := make([]string, 0, len(c.TemplatesDirs)+1)
	for _, d := range c.TemplatesDirs {
		dirs = append(dirs, c.Resolve(d))
	}
	if c.Theme.Dir != "" {
		dirs = append(dirs, filepath.Join(c.Resolve(c.Theme.Dir), "templates"))
	}
	return dirs
}

// PipelineAllowed reports whether name passes the configured pipeline filter.
func (c *Config) PipelineAllowed(name string) bool {
	if len(c.Baker.Pipelines) == 0 {
		return true
	}
	for _, p := range c.Baker.Pipelines {
		if p == name {
			return true
		}
	}
	return false
}

// Fingerprint identifies this configuration together with the running engine
// version. A change invalidates every cache region but the foundational ones.
func (c *Config) Fingerprint() string {
	h := sha256.New()
	h.Write(c.raw)
	h.Write([]byte{0})
	h.Write([]byte(version.Version))
	return hex.EncodeToString(h.Sum(nil))
}
