// Package sources enumerates content items from the site tree.
//
// A source yields ContentItems (a stable spec plus metadata) and knows where an
// item lands in the output directory. Sources never render anything; pipelines do.
package sources

import (
	"iter"
	"log/slog"

	"git.home.luguber.info/inful/bakery/internal/config"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

// Realm is an override layer. Items from earlier realms win over later ones.
type Realm string

const (
	RealmUser  Realm = config.RealmUser
	RealmTheme Realm = config.RealmTheme
)

// Realms lists realms in dispatch order.
var Realms = []Realm{RealmUser, RealmTheme}

// Default pipeline names per source type.
const (
	PipelinePage  = "page"
	PipelineAsset = "asset"
)

// Metadata keys set on every item.
const (
	MetaRelPath = "rel_path"
	MetaSlug    = "slug"
	MetaFormat  = "format"
)

// ContentItem identifies one unit of content. Spec is stable across runs.
type ContentItem struct {
	Spec     string         `json:"spec"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RelPath returns the item path relative to its source endpoint.
func (c ContentItem) RelPath() string {
	s, _ := c.Metadata[MetaRelPath].(string)
	return s
}

// Source is the contract every content source satisfies.
type Source interface {
	Name() string
	Type() string
	Realm() Realm
	PipelineName() string
	Endpoint() string
	// Items yields every item. Each call restarts the enumeration.
	Items() iter.Seq2[ContentItem, error]
	// Route returns the slash-separated output path of item, relative to the output dir.
	Route(item ContentItem) (string, error)
}

// RouteParams are the (possibly partial) parameters used to look an item up.
type RouteParams map[string]string

// Finder is implemented by sources that can resolve an item from route parameters.
type Finder interface {
	FindContent(params RouteParams) (ContentItem, bool, error)
}

// Creator is implemented by sources that support authoring new items.
type Creator interface {
	CreateContent(args CreateArgs) (ContentItem, error)
	InteractiveFields() []InteractiveField
}

// New builds the source described by sc. site supplies page formats.
func New(sc config.SourceConfig, site config.SiteConfig, resolve func(string) string, logger *slog.Logger) (Source, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := fsSource{
		name:          sc.Name,
		typ:           sc.Type,
		realm:         Realm(sc.Realm),
		pipeline:      sc.Pipeline,
		endpoint:      resolve(sc.FSEndpoint),
		ignoreMissing: sc.IgnoreMissingDir,
		logger:        logger.With(slog.String("source", sc.Name)),
	}
	switch sc.Type {
	case config.SourceTypePages:
		base.defaultPipeline = PipelinePage
		return &PagesSource{fsSource: base, formats: site.Formats}, nil
	case config.SourceTypeAssets:
		base.defaultPipeline = PipelineAsset
		return &AssetsSource{fsSource: base}, nil
	case config.SourceTypePostsFlat, config.SourceTypePostsShallow, config.SourceTypePostsHierarchy:
		base.defaultPipeline = PipelinePage
		return newPostsSource(base, postLayouts[sc.Type], site), nil
	default:
		return nil, foundationerrors.ConfigError("unknown source type").
			WithContext("source", sc.Name).
			WithContext("type", sc.Type).Build()
	}
}

// FromConfig builds every configured source in declaration order.
func FromConfig(cfg *config.Config, logger *slog.Logger) ([]Source, error) {
	out := make([]Source, 0, len(cfg.Sources))
	for _, sc := range cfg.Sources {
		src, err := New(sc, cfg.Site, cfg.Resolve, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}
