package sources

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bakery/internal/config"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
}

func site() config.SiteConfig {
	return config.SiteConfig{Formats: []string{"md", "html"}, DefaultFormat: "md"}
}

func newSource(t *testing.T, typ, endpoint string, ignoreMissing bool) Source {
	t.Helper()
	src, err := New(config.SourceConfig{
		Name:             "test",
		Type:             typ,
		FSEndpoint:       endpoint,
		Realm:            config.RealmUser,
		IgnoreMissingDir: ignoreMissing,
	}, site(), func(p string) string { return p }, nil)
	require.NoError(t, err)
	return src
}

func collect(t *testing.T, src Source) []ContentItem {
	t.Helper()
	var items []ContentItem
	for item, err := range src.Items() {
		require.NoError(t, err)
		items = append(items, item)
	}
	return items
}

func relPaths(items []ContentItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.RelPath())
	}
	return out
}

func TestPagesSource_ItemsAndRoute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "index.md"), "# Home")
	writeFile(t, filepath.Join(dir, "docs", "guide.md"), "# Guide")
	writeFile(t, filepath.Join(dir, "docs", "guide-assets", "img.png"), "png")
	writeFile(t, filepath.Join(dir, "docs", "notes.txt"), "skip")
	writeFile(t, filepath.Join(dir, ".hidden", "x.md"), "skip")

	src := newSource(t, config.SourceTypePages, dir, false)
	assert.Equal(t, PipelinePage, src.PipelineName())
	assert.Equal(t, RealmUser, src.Realm())

	items := collect(t, src)
	assert.Equal(t, []string{"docs/guide.md", "index.md"}, relPaths(items))

	route, err := src.Route(items[0])
	require.NoError(t, err)
	assert.Equal(t, "docs/guide.html", route)
	assert.Equal(t, filepath.ToSlash(filepath.Join(dir, "docs", "guide.md")), items[0].Spec)
}

func TestAssetsSource_ItemsAndRoute(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "css", "site.css"), "body{}")
	writeFile(t, filepath.Join(dir, "logo.svg"), "<svg/>")

	src := newSource(t, config.SourceTypeAssets, dir, false)
	assert.Equal(t, PipelineAsset, src.PipelineName())
	items := collect(t, src)
	require.Len(t, items, 2)
	route, err := src.Route(items[0])
	require.NoError(t, err)
	assert.Equal(t, "css/site.css", route)
}

func TestSource_MissingEndpoint(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope")

	src := newSource(t, config.SourceTypePages, missing, true)
	assert.Empty(t, collect(t, src))

	src = newSource(t, config.SourceTypePages, missing, false)
	var gotErr error
	for _, err := range src.Items() {
		gotErr = err
	}
	require.Error(t, gotErr)
}

func TestSource_PipelineOverride(t *testing.T) {
	src, err := New(config.SourceConfig{
		Name: "raw", Type: config.SourceTypePages, FSEndpoint: t.TempDir(), Pipeline: "asset",
	}, site(), func(p string) string { return p }, nil)
	require.NoError(t, err)
	assert.Equal(t, "asset", src.PipelineName())
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.SourceConfig{Name: "x", Type: "bogus"}, site(), func(p string) string { return p }, nil)
	require.Error(t, err)
}

func TestPostsSource_Layouts(t *testing.T) {
	tests := []struct {
		typ  string
		file string
	}{
		{config.SourceTypePostsFlat, "2024-03-07_hello-world.md"},
		{config.SourceTypePostsShallow, "2024/03-07_hello-world.md"},
		{config.SourceTypePostsHierarchy, "2024/03/07_hello-world.md"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, filepath.Join(dir, filepath.FromSlash(tt.file)), "# Hi")
			writeFile(t, filepath.Join(dir, "README.txt"), "ignored")

			src := newSource(t, tt.typ, dir, false)
			items := collect(t, src)
			require.Len(t, items, 1)
			item := items[0]
			assert.Equal(t, 2024, item.Metadata[MetaYear])
			assert.Equal(t, 3, item.Metadata[MetaMonth])
			assert.Equal(t, 7, item.Metadata[MetaDay])
			assert.Equal(t, "hello-world", item.Metadata[MetaSlug])

			route, err := src.Route(item)
			require.NoError(t, err)
			assert.Equal(t, "2024/03/07/hello-world.html", route)

			finder, ok := src.(Finder)
			require.True(t, ok)
			found, ok, err := finder.FindContent(RouteParams{"slug": "hello-world"})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, item.Spec, found.Spec)

			found, ok, err = finder.FindContent(RouteParams{"year": "2024", "month": "3", "day": "7", "slug": "hello-world", "ext": "md"})
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, item.Spec, found.Spec)

			_, ok, err = finder.FindContent(RouteParams{"slug": "missing"})
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestPostsSource_FindContentAmbiguous(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "2024-01-01_same.md"), "a")
	writeFile(t, filepath.Join(dir, "2024-02-01_same.md"), "b")

	src := newSource(t, config.SourceTypePostsFlat, dir, false)
	_, ok, err := src.(Finder).FindContent(RouteParams{"slug": "same"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = src.(Finder).FindContent(RouteParams{"month": "02", "slug": "same"})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPostsSource_CreateContent(t *testing.T) {
	dir := t.TempDir()
	src := newSource(t, config.SourceTypePostsHierarchy, dir, true).(*PostsSource)
	src.now = func() time.Time { return time.Date(2024, 12, 31, 15, 0, 0, 0, time.UTC) }

	tests := []struct {
		date string
		want string
	}{
		{"", "2024/12/31_my-post.md"},
		{"today", "2024/12/31_my-post.md"},
		{"tomorrow", "2025/01/01_my-post.md"},
		{"+2", "2025/01/02_my-post.md"},
		{"2023/2/5", "2023/02/05_my-post.md"},
	}
	for _, tt := range tests {
		item, err := src.CreateContent(CreateArgs{Date: tt.date, Slug: "my-post"})
		require.NoError(t, err, tt.date)
		assert.Equal(t, tt.want, item.RelPath(), tt.date)
		assert.Equal(t, map[string]any{"title": "My Post"}, item.Metadata[MetaConfig])
	}

	_, err := src.CreateContent(CreateArgs{Date: "+x", Slug: "p"})
	require.Error(t, err)
	_, err = src.CreateContent(CreateArgs{Date: "2024-01-01", Slug: "p"})
	require.Error(t, err)

	item, err := src.CreateContent(CreateArgs{Slug: "page.html"})
	require.NoError(t, err)
	assert.Equal(t, "2024/12/31_page.html", item.RelPath())

	fields := src.InteractiveFields()
	require.Len(t, fields, 4)
	assert.Equal(t, 2024, fields[0].Default)
}

func TestScaffold(t *testing.T) {
	dir := t.TempDir()
	src := newSource(t, config.SourceTypePostsFlat, dir, true).(*PostsSource)
	item, err := src.CreateContent(CreateArgs{Date: "2024/01/02", Slug: "first_post"})
	require.NoError(t, err)

	require.NoError(t, Scaffold(item))
	data, err := os.ReadFile(filepath.Join(dir, "2024-01-02_first_post.md"))
	require.NoError(t, err)
	assert.Equal(t, "---\ntitle: First Post\n---\n\n", string(data))

	require.Error(t, Scaffold(item))
}

func TestTitleFromSlug(t *testing.T) {
	assert.Equal(t, "Hello World", TitleFromSlug("hello-world"))
	assert.Equal(t, "A B C", TitleFromSlug("a__b-c"))
}
