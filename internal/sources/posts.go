package sources

import (
	"fmt"
	"iter"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"git.home.luguber.info/inful/bakery/internal/config"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

// Post metadata keys.
const (
	MetaYear  = "year"
	MetaMonth = "month"
	MetaDay   = "day"
	MetaDate  = "date"
)

// postLayout describes how dated posts are laid out on disk.
type postLayout struct {
	// format builds the endpoint-relative path from its parts.
	format func(year, month, day, slug, ext string) string
	// pattern captures year, month, day, slug, ext from a slash path ending.
	pattern *regexp.Regexp
	// depth is the number of date directories above the post file.
	depth int
}

var postLayouts = map[string]postLayout{
	config.SourceTypePostsFlat: {
		format: func(y, m, d, slug, ext string) string {
			return fmt.Sprintf("%s-%s-%s_%s.%s", y, m, d, slug, ext)
		},
		pattern: regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})_(.*)\.([^./]*)$`),
	},
	config.SourceTypePostsShallow: {
		format: func(y, m, d, slug, ext string) string {
			return fmt.Sprintf("%s/%s-%s_%s.%s", y, m, d, slug, ext)
		},
		pattern: regexp.MustCompile(`(\d{4})/(\d{2})-(\d{2})_(.*)\.([^./]*)$`),
		depth:   1,
	},
	config.SourceTypePostsHierarchy: {
		format: func(y, m, d, slug, ext string) string {
			return fmt.Sprintf("%s/%s/%s_%s.%s", y, m, d, slug, ext)
		},
		pattern: regexp.MustCompile(`(\d{4})/(\d{2})/(\d{2})_(.*)\.([^./]*)$`),
		depth:   2,
	},
}

// PostsSource yields dated posts in one of the flat, shallow or hierarchy layouts.
type PostsSource struct {
	fsSource
	layout        postLayout
	formats       []string
	defaultFormat string
	now           func() time.Time
}

func newPostsSource(base fsSource, layout postLayout, site config.SiteConfig) *PostsSource {
	return &PostsSource{
		fsSource:      base,
		layout:        layout,
		formats:       site.Formats,
		defaultFormat: site.DefaultFormat,
		now:           time.Now,
	}
}

// Items yields every post file whose path matches the layout. Files that do
// not match are logged and skipped.
func (s *PostsSource) Items() iter.Seq2[ContentItem, error] {
	return func(yield func(ContentItem, error) bool) {
		for rel, err := range s.walkFiles(func(name string) bool { return strings.HasSuffix(name, AssetsDirSuffix) }) {
			if err != nil {
				yield(ContentItem{}, err)
				return
			}
			if strings.Count(rel, "/") != s.layout.depth {
				continue
			}
			item, ok := s.parse(rel)
			if !ok {
				s.logger.Warn("Ignoring post with unexpected file name", "path", rel)
				continue
			}
			if !yield(item, nil) {
				return
			}
		}
	}
}

// parse extracts post metadata from an endpoint-relative slash path.
func (s *PostsSource) parse(rel string) (ContentItem, bool) {
	m := s.layout.pattern.FindStringSubmatch(rel)
	if m == nil {
		return ContentItem{}, false
	}
	year, errY := strconv.Atoi(m[1])
	month, errM := strconv.Atoi(m[2])
	day, errD := strconv.Atoi(m[3])
	if errY != nil || errM != nil || errD != nil {
		return ContentItem{}, false
	}
	date := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)
	if date.Month() != time.Month(month) || date.Day() != day {
		return ContentItem{}, false
	}
	return s.item(rel, map[string]any{
		MetaYear:   year,
		MetaMonth:  month,
		MetaDay:    day,
		MetaDate:   date,
		MetaSlug:   m[4],
		MetaFormat: m[5],
	}), true
}

// Route maps a post to "YYYY/MM/DD/slug.html".
func (s *PostsSource) Route(item ContentItem) (string, error) {
	year, _ := item.Metadata[MetaYear].(int)
	month, _ := item.Metadata[MetaMonth].(int)
	day, _ := item.Metadata[MetaDay].(int)
	slug, _ := item.Metadata[MetaSlug].(string)
	if year == 0 || slug == "" {
		return "", foundationerrors.ValidationError("item is not a post").
			WithContext("item", item.Spec).Build()
	}
	return path.Join(fmt.Sprintf("%04d/%02d/%02d", year, month, day), slug+".html"), nil
}

// FindContent resolves a post from route parameters. Missing parts become
// wildcards. Exactly one file must match; zero or several yields not found.
func (s *PostsSource) FindContent(params RouteParams) (ContentItem, bool, error) {
	year := padParam(params[MetaYear], 4, "????")
	month := padParam(params[MetaMonth], 2, "??")
	day := padParam(params[MetaDay], 2, "??")
	slug := params[MetaSlug]
	if slug == "" {
		slug = "*"
	}
	ext := params["ext"]
	if ext == "" {
		if len(s.formats) == 1 {
			ext = s.formats[0]
		} else {
			ext = "*"
		}
	}

	rel := s.layout.format(year, month, day, slug, ext)
	full := filepath.Join(s.endpoint, filepath.FromSlash(rel))
	if !strings.ContainsAny(rel, "*?") {
		if _, err := os.Stat(full); err != nil {
			return ContentItem{}, false, nil
		}
		item, ok := s.parse(rel)
		return item, ok, nil
	}

	matches, err := filepath.Glob(full)
	if err != nil {
		return ContentItem{}, false, foundationerrors.WrapError(err, foundationerrors.CategoryValidation, "invalid route parameters").
			WithContext("pattern", rel).Build()
	}
	if len(matches) != 1 {
		return ContentItem{}, false, nil
	}
	matchRel, err := filepath.Rel(s.endpoint, matches[0])
	if err != nil {
		return ContentItem{}, false, err
	}
	item, ok := s.parse(filepath.ToSlash(matchRel))
	return item, ok, nil
}

func padParam(v string, width int, wildcard string) string {
	if v == "" {
		return wildcard
	}
	if n, err := strconv.Atoi(v); err == nil {
		return fmt.Sprintf("%0*d", width, n)
	}
	return v
}

// CreateContent computes the path and metadata of a new post. It does not
// touch the filesystem; see Scaffold.
func (s *PostsSource) CreateContent(args CreateArgs) (ContentItem, error) {
	date, err := args.resolveDate(s.now())
	if err != nil {
		return ContentItem{}, err
	}
	slug := args.Slug
	ext := strings.TrimPrefix(path.Ext(slug), ".")
	if ext != "" && slices.Contains(s.formats, ext) {
		slug = strings.TrimSuffix(slug, "."+ext)
	} else {
		ext = s.defaultFormat
	}
	if slug == "" {
		return ContentItem{}, foundationerrors.ValidationError("a slug is required").Build()
	}

	rel := s.layout.format(
		fmt.Sprintf("%04d", date.Year()),
		fmt.Sprintf("%02d", int(date.Month())),
		fmt.Sprintf("%02d", date.Day()),
		slug, ext)
	item, ok := s.parse(rel)
	if !ok {
		return ContentItem{}, foundationerrors.ValidationError("slug produces an invalid post path").
			WithContext("slug", args.Slug).Build()
	}
	item.Metadata[MetaConfig] = map[string]any{"title": TitleFromSlug(slug)}
	return item, nil
}

// InteractiveFields lists the prompts used when authoring a post.
func (s *PostsSource) InteractiveFields() []InteractiveField {
	now := s.now()
	return []InteractiveField{
		{Name: MetaYear, Type: FieldInt, Default: now.Year()},
		{Name: MetaMonth, Type: FieldInt, Default: int(now.Month())},
		{Name: MetaDay, Type: FieldInt, Default: now.Day()},
		{Name: MetaSlug, Type: FieldString, Default: "new-post"},
	}
}
