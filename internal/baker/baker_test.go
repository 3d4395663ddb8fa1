package baker

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/events"
	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/history"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/site"
)

const pagesConfig = `
site:
  title: Test
baker:
  workers: 2
sources:
  - name: pages
    type: pages
    fs_endpoint: pages
`

const pagesAndAssetsConfig = pagesConfig + `  - name: assets
    type: assets
    fs_endpoint: assets
`

type siteFixture struct {
	root string
	site *site.Site
	logs *bytes.Buffer
}

func newSiteFixture(t *testing.T, cfg string) *siteFixture {
	t.Helper()
	root := t.TempDir()
	f := &siteFixture{root: root, logs: &bytes.Buffer{}}
	f.write(t, "config.yaml", cfg)
	s, err := site.Open(filepath.Join(root, "config.yaml"), f.logger())
	require.NoError(t, err)
	f.site = s
	return f
}

func (f *siteFixture) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func (f *siteFixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func (f *siteFixture) spec(rel string) string {
	return filepath.ToSlash(filepath.Join(f.root, filepath.FromSlash(rel)))
}

func (f *siteFixture) outPath(rel string) string {
	return filepath.Join(f.site.Config.OutputDir(), filepath.FromSlash(rel))
}

func (f *siteFixture) baker(t *testing.T, mutate func(*Options)) *Baker {
	t.Helper()
	opts := Options{Site: f.site, Logger: f.logger()}
	if mutate != nil {
		mutate(&opts)
	}
	b, err := New(opts)
	require.NoError(t, err)
	return b
}

func (f *siteFixture) bake(t *testing.T, mutate func(*Options)) *records.MultiRecord {
	t.Helper()
	cur, err := f.baker(t, mutate).Bake(t.Context())
	require.NoError(t, err)
	require.NotNil(t, cur)
	return cur
}

type fakePublisher struct {
	events []events.Event
}

func (p *fakePublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeHistory struct {
	summaries []history.Summary
}

func (h *fakeHistory) Append(_ context.Context, sum history.Summary) error {
	h.summaries = append(h.summaries, sum)
	return nil
}

func TestNew_RequiresSite(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
}

func TestBake_IncrementalRebake(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "---\ntitle: A\n---\nHello A\n")
	f.write(t, "pages/b.md", "# B\n\nHello B\n")

	first := f.bake(t, nil)
	require.True(t, first.Success)
	assert.Equal(t, 0, first.IncrementalCount)
	rec := first.GetRecord("pages", false)
	require.NotNil(t, rec)
	assert.Len(t, rec.Entries, 2)
	assert.FileExists(t, f.outPath("a.html"))
	assert.FileExists(t, f.outPath("b.html"))

	second := f.bake(t, nil)
	require.True(t, second.Success)
	assert.Equal(t, first.IncrementalCount+1, second.IncrementalCount)
	rec2 := second.GetRecord("pages", false)
	require.NotNil(t, rec2)
	assert.ElementsMatch(t, rec.Specs(), rec2.Specs())
	for _, spec := range rec.Specs() {
		prev, cur := rec.GetEntry(spec), rec2.GetEntry(spec)
		assert.Equal(t, prev.Success(), cur.Success())
		assert.Equal(t, prev.Outputs, cur.Outputs)
		assert.Equal(t, prev.Hash, cur.Hash)
		assert.True(t, cur.Reused, spec)
	}

	third := f.bake(t, nil)
	assert.Equal(t, 2, third.IncrementalCount)
}

func TestBake_PersistsRecords(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "Hello\n")

	b := f.baker(t, nil)
	cur, err := b.Bake(t.Context())
	require.NoError(t, err)

	path, err := b.RecordsPath()
	require.NoError(t, err)
	loaded, err := records.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cur.BakeID, loaded.BakeID)
	assert.Equal(t, f.site.Config.OutputDir(), loaded.OutDir)
	assert.True(t, loaded.BakeTime.Equal(cur.BakeTime))
	assert.Equal(t, []string{"pages"}, loaded.RecordNames())
}

func TestBake_ForceInvalidatesCache(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "Hello\n")
	f.bake(t, nil)
	f.bake(t, nil)

	pages, err := f.site.Cache.GetCache(cache.Pages)
	require.NoError(t, err)
	require.NoError(t, pages.Write("marker", []byte("x")))

	cur := f.bake(t, func(o *Options) { o.Force = true })
	assert.Equal(t, 0, cur.IncrementalCount)
	assert.NoFileExists(t, pages.GetCachePath("marker"))
	assert.False(t, cur.GetRecord("pages", false).Entries[0].Reused)

	app, err := f.site.Cache.GetCache(cache.App)
	require.NoError(t, err)
	assert.True(t, app.Has("config.fp"))
	assert.Contains(t, f.logs.String(), ReasonForced)
}

func TestBake_ConfigChangeSurvivesCanceledBake(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "A\n")
	hist := &fakeHistory{}
	f.bake(t, func(o *Options) { o.History = hist })

	cfg := f.write(t, "config.yaml", strings.Replace(pagesConfig, "title: Test", "title: Changed", 1))
	s, err := site.Open(cfg, f.logger())
	require.NoError(t, err)
	f.site = s

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = f.baker(t, nil).Bake(ctx)
	require.Error(t, err)

	cur := f.bake(t, func(o *Options) { o.History = hist })
	require.True(t, cur.Success)
	require.Len(t, hist.summaries, 2)
	assert.Equal(t, ReasonConfigChanged, hist.summaries[1].InvalidReason)
	assert.Zero(t, cur.IncrementalCount)
	assert.False(t, cur.GetRecord("pages", false).GetEntry(f.spec("pages/a.md")).Reused)

	again := f.bake(t, func(o *Options) { o.History = hist })
	assert.Empty(t, hist.summaries[2].InvalidReason)
	assert.Equal(t, 1, again.IncrementalCount)
}

func TestBake_TemplateTouchInvalidatesCache(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "Hello\n")
	tpl := f.write(t, "templates/default.html", "<main>{{ .Content }}</main>")
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(tpl, past, past))

	f.bake(t, nil)
	second := f.bake(t, nil)
	require.Equal(t, 1, second.IncrementalCount)

	future := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(tpl, future, future))
	third := f.bake(t, nil)
	assert.Equal(t, 0, third.IncrementalCount)
	entry := third.GetRecord("pages", false).GetEntry(f.spec("pages/a.md"))
	require.NotNil(t, entry)
	assert.False(t, entry.Reused)
	assert.Contains(t, f.logs.String(), ReasonTemplatesModified)
}

func TestBake_CorruptRecordsTriggerFullRebuild(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "Hello\n")
	b := f.baker(t, nil)
	_, err := b.Bake(t.Context())
	require.NoError(t, err)

	path, err := b.RecordsPath()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	cur, err := b.Bake(t.Context())
	require.NoError(t, err)
	assert.True(t, cur.Success)
	assert.Equal(t, 0, cur.IncrementalCount)
	assert.Contains(t, f.logs.String(), ReasonRecordsInvalid)
}

func TestBake_UserRealmOverridesTheme(t *testing.T) {
	f := newSiteFixture(t, pagesConfig+"theme:\n  dir: theme\n")
	f.write(t, "pages/about.md", "User about\n")
	f.write(t, "theme/pages/about.md", "Theme about\n")
	f.write(t, "theme/pages/contact.md", "Theme contact\n")

	cur := f.bake(t, nil)
	require.True(t, cur.Success)

	assert.Contains(t, readFile(t, f.outPath("about.html")), "User about")
	assert.Contains(t, readFile(t, f.outPath("contact.html")), "Theme contact")

	theme := cur.GetRecord("theme_pages", false)
	require.NotNil(t, theme)
	overridden := theme.GetEntry(f.spec("theme/pages/about.md"))
	require.NotNil(t, overridden)
	assert.True(t, overridden.Overridden)
	assert.Empty(t, overridden.Outputs)
	assert.Equal(t, f.spec("pages/about.md"), cur.ClaimedOutputs()["about.html"])
}

func TestBake_UnbuiltUserItemStillOverridesTheme(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		success bool
	}{
		{"broken front matter", "---\ntitle: broken\nno closing delimiter\n", false},
		{"draft", "---\ndraft: true\n---\nUser draft\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSiteFixture(t, pagesConfig+"theme:\n  dir: theme\n")
			f.write(t, "pages/about.md", tt.user)
			f.write(t, "theme/pages/about.md", "Theme about\n")

			cur := f.bake(t, nil)
			assert.Equal(t, tt.success, cur.Success)

			user := cur.GetRecord("pages", false).GetEntry(f.spec("pages/about.md"))
			require.NotNil(t, user)
			assert.Equal(t, "about.html", user.Route)
			assert.Empty(t, user.Outputs)

			theme := cur.GetRecord("theme_pages", false).GetEntry(f.spec("theme/pages/about.md"))
			require.NotNil(t, theme)
			assert.True(t, theme.Overridden)
			assert.Empty(t, theme.Outputs)

			assert.NotContains(t, cur.ClaimedOutputs(), "about.html")
			assert.Equal(t, f.spec("pages/about.md"), cur.ClaimedRoutes()["about.html"])
			assert.NoFileExists(t, f.outPath("about.html"))
		})
	}
}

func TestBake_FollowUpPasses(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/post.md", "Hello\n")
	f.write(t, "pages/post-assets/pic.png", "png")

	pub := &fakePublisher{}
	hist := &fakeHistory{}
	cur := f.bake(t, func(o *Options) {
		o.Publisher = pub
		o.History = hist
	})
	require.True(t, cur.Success)

	entry := cur.GetRecord("pages", false).GetEntry(f.spec("pages/post.md"))
	require.NotNil(t, entry)
	assert.Equal(t, []string{"post.html", "post/pic.png"}, entry.Outputs)
	assert.Nil(t, entry.Payload)
	assert.Equal(t, "png", readFile(t, f.outPath("post/pic.png")))
	assert.Equal(t, 2, cur.Stats.Counters["passes"])

	require.Len(t, hist.summaries, 1)
	assert.Equal(t, 2, hist.summaries[0].Passes)
	assert.Equal(t, cur.BakeID, hist.summaries[0].BakeID)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.BakeStarted, pub.events[0].Type)
	assert.Equal(t, events.BakeCompleted, pub.events[1].Type)
	assert.True(t, pub.events[1].Success)
}

func TestBake_MaxPassesDropsFollowUps(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/post.md", "Hello\n")
	f.write(t, "pages/post-assets/pic.png", "png")

	cur := f.bake(t, func(o *Options) { o.MaxPasses = 1 })
	assert.False(t, cur.Success)
	entry := cur.GetRecord("pages", false).GetEntry(f.spec("pages/post.md"))
	require.NotNil(t, entry)
	require.Len(t, entry.Errors, 1)
	assert.Contains(t, entry.Errors[0], "pass limit")
	assert.NoFileExists(t, f.outPath("post/pic.png"))
	assert.Len(t, cur.GetRecord("pages", false).Entries, 1)
}

func TestBake_RotatesBackups(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "Hello\n")
	b := f.baker(t, nil)
	path, err := b.RecordsPath()
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	for n := 0; n <= records.MaxBackups; n++ {
		require.NoError(t, os.WriteFile(records.BackupPath(path, n), []byte("gen-"+string(rune('0'+n))), 0o600))
	}

	cur, err := b.Bake(t.Context())
	require.NoError(t, err)
	assert.Len(t, records.ListBackups(path), records.MaxBackups)
	assert.Equal(t, "gen-0", readFile(t, records.BackupPath(path, 1)))
	assert.Equal(t, "gen-8", readFile(t, records.BackupPath(path, records.MaxBackups)))

	loaded, err := records.Load(path)
	require.NoError(t, err)
	assert.Equal(t, cur.BakeID, loaded.BakeID)
}

func TestBake_DeletesStaleOutputs(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "A\n")
	b := f.write(t, "pages/b.md", "B\n")
	f.bake(t, nil)
	require.FileExists(t, f.outPath("b.html"))

	require.NoError(t, os.Remove(b))
	cur := f.bake(t, nil)
	assert.True(t, cur.Success)
	assert.NoFileExists(t, f.outPath("b.html"))
	assert.FileExists(t, f.outPath("a.html"))
	assert.Equal(t, 1, cur.Stats.Counters["stale_deleted"])

	again := f.bake(t, nil)
	assert.True(t, again.Success)
	assert.Equal(t, 0, again.Stats.Counters["stale_deleted"])
}

func TestBake_ItemFailureKeepsOtherOutputs(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "A\n")
	first := f.bake(t, nil)
	require.True(t, first.Success)

	f.write(t, "pages/b.md", "---\ntitle: broken\nno closing delimiter\n")
	pub := &fakePublisher{}
	cur := f.bake(t, func(o *Options) { o.Publisher = pub })

	assert.False(t, cur.Success)
	rec := cur.GetRecord("pages", false)
	require.NotNil(t, rec)
	assert.False(t, rec.Success)
	assert.True(t, rec.GetEntry(f.spec("pages/a.md")).Success())
	failed := rec.GetEntry(f.spec("pages/b.md"))
	require.NotNil(t, failed)
	require.NotEmpty(t, failed.Errors)
	assert.FileExists(t, f.outPath("a.html"))
	assert.True(t, strings.Contains(f.logs.String(), "b.md"))
	assert.Contains(t, f.logs.String(), failed.Errors[0])
	assert.Equal(t, events.BakeFailed, pub.events[len(pub.events)-1].Type)
}

func TestBake_NothingToDo(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	pub := &fakePublisher{}
	_, err := f.baker(t, func(o *Options) {
		o.AllowedPipelines = []string{"asset"}
		o.Publisher = pub
	}).Bake(t.Context())
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryValidation))
	assert.Equal(t, events.BakeFailed, pub.events[len(pub.events)-1].Type)
}

func TestBake_ExcludedPipelineKeepsRecord(t *testing.T) {
	f := newSiteFixture(t, pagesAndAssetsConfig)
	f.write(t, "pages/a.md", "A\n")
	f.write(t, "assets/site.css", "body{}")

	first := f.bake(t, nil)
	require.True(t, first.Success)
	require.FileExists(t, f.outPath("site.css"))

	cur := f.bake(t, func(o *Options) { o.AllowedPipelines = []string{"page"} })
	assert.True(t, cur.Success)
	require.NotNil(t, cur.GetRecord("assets", false))
	assert.FileExists(t, f.outPath("site.css"))
}

func TestBake_CanceledContext(t *testing.T) {
	f := newSiteFixture(t, pagesConfig)
	f.write(t, "pages/a.md", "A\n")
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := f.baker(t, nil).Bake(ctx)
	require.Error(t, err)
}

func readFile(t *testing.T, p string) string {
	t.Helper()
	data, err := os.ReadFile(p)
	require.NoError(t, err)
	return string(data)
}
