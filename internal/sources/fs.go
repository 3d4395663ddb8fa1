package sources

import (
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
)

// AssetsDirSuffix marks a directory holding the assets of the page with the same stem.
const AssetsDirSuffix = "-assets"

type fsSource struct {
	name            string
	typ             string
	realm           Realm
	pipeline        string
	defaultPipeline string
	endpoint        string
	ignoreMissing   bool
	logger          *slog.Logger
}

func (s *fsSource) Name() string     { return s.name }
func (s *fsSource) Type() string     { return s.typ }
func (s *fsSource) Realm() Realm     { return s.realm }
func (s *fsSource) Endpoint() string { return s.endpoint }

func (s *fsSource) PipelineName() string {
	if s.pipeline != "" {
		return s.pipeline
	}
	return s.defaultPipeline
}

// checkEndpoint reports whether the endpoint exists. A missing endpoint is an
// error unless the source was configured to ignore it.
func (s *fsSource) checkEndpoint() (bool, error) {
	info, err := os.Stat(s.endpoint)
	if err == nil && info.IsDir() {
		return true, nil
	}
	if s.ignoreMissing {
		return false, nil
	}
	return false, foundationerrors.FileSystemError("source endpoint is not a directory").
		WithContext("source", s.name).
		WithContext("path", s.endpoint).Build()
}

func (s *fsSource) item(rel string, meta map[string]any) ContentItem {
	rel = filepath.ToSlash(rel)
	if meta == nil {
		meta = make(map[string]any)
	}
	meta[MetaRelPath] = rel
	return ContentItem{
		Spec:     filepath.ToSlash(filepath.Join(s.endpoint, filepath.FromSlash(rel))),
		Metadata: meta,
	}
}

// walkFiles yields endpoint-relative paths of regular files, skipping hidden
// entries and directories rejected by skipDir. Order is lexical.
func (s *fsSource) walkFiles(skipDir func(name string) bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ok, err := s.checkEndpoint()
		if err != nil {
			yield("", err)
			return
		}
		if !ok {
			return
		}
		var stop bool
		walkErr := filepath.WalkDir(s.endpoint, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			name := d.Name()
			if p != s.endpoint && strings.HasPrefix(name, ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if p != s.endpoint && skipDir != nil && skipDir(name) {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(s.endpoint, p)
			if err != nil {
				return err
			}
			if !yield(filepath.ToSlash(rel), nil) {
				stop = true
				return filepath.SkipAll
			}
			return nil
		})
		if walkErr != nil && !stop {
			yield("", walkErr)
		}
	}
}

// PagesSource yields page files (by extension) from a directory tree.
type PagesSource struct {
	fsSource
	formats []string
}

func (s *PagesSource) isPage(rel string) bool {
	ext := strings.TrimPrefix(path.Ext(rel), ".")
	return ext != "" && slices.Contains(s.formats, ext)
}

// Items yields every page under the endpoint. Asset sub-directories are skipped.
func (s *PagesSource) Items() iter.Seq2[ContentItem, error] {
	return func(yield func(ContentItem, error) bool) {
		for rel, err := range s.walkFiles(func(name string) bool { return strings.HasSuffix(name, AssetsDirSuffix) }) {
			if err != nil {
				yield(ContentItem{}, err)
				return
			}
			if !s.isPage(rel) {
				continue
			}
			ext := path.Ext(rel)
			item := s.item(rel, map[string]any{
				MetaSlug:   strings.TrimSuffix(rel, ext),
				MetaFormat: strings.TrimPrefix(ext, "."),
			})
			if !yield(item, nil) {
				return
			}
		}
	}
}

// Route maps "a/b.md" to "a/b.html".
func (s *PagesSource) Route(item ContentItem) (string, error) {
	rel := item.RelPath()
	if rel == "" {
		return "", foundationerrors.ValidationError("item has no relative path").
			WithContext("item", item.Spec).Build()
	}
	return strings.TrimSuffix(rel, path.Ext(rel)) + ".html", nil
}

// AssetsSource yields every file from a directory tree, copied verbatim.
type AssetsSource struct {
	fsSource
}

func (s *AssetsSource) Items() iter.Seq2[ContentItem, error] {
	return func(yield func(ContentItem, error) bool) {
		for rel, err := range s.walkFiles(nil) {
			if err != nil {
				yield(ContentItem{}, err)
				return
			}
			if !yield(s.item(rel, nil), nil) {
				return
			}
		}
	}
}

// Route keeps the endpoint-relative path.
func (s *AssetsSource) Route(item ContentItem) (string, error) {
	rel := item.RelPath()
	if rel == "" {
		return "", foundationerrors.ValidationError("item has no relative path").
			WithContext("item", item.Spec).Build()
	}
	return rel, nil
}
