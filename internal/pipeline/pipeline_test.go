package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/config"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/sources"
	"git.home.luguber.info/inful/bakery/internal/stats"
)

type fixture struct {
	root   string
	outDir string
	env    *Env
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{root: root, outDir: filepath.Join(root, "out")}
	f.env = &Env{
		OutDir:        f.outDir,
		Site:          config.SiteConfig{Title: "Test", Root: "/", Formats: []string{"md", "html"}, DefaultFormat: "md"},
		TemplatesDirs: []string{filepath.Join(root, "templates")},
		Cache:         cache.New(filepath.Join(root, "_cache")),
	}
	return f
}

func (f *fixture) write(t *testing.T, rel, content string) string {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o750))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func (f *fixture) source(t *testing.T, name, typ, dir, realm string) sources.Source {
	t.Helper()
	src, err := sources.New(config.SourceConfig{
		Name: name, Type: typ, FSEndpoint: filepath.Join(f.root, dir), Realm: realm, IgnoreMissingDir: true,
	}, f.env.Site, func(p string) string { return p }, nil)
	require.NoError(t, err)
	return src
}

func (f *fixture) out(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.outDir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func createJobs(t *testing.T, p Pipeline) []*Job {
	t.Helper()
	jobs, err := p.CreateJobs(&CreateJobsContext{Record: records.NewRecord(p.RecordName()), Claimed: map[string]string{}})
	require.NoError(t, err)
	return jobs
}

func runJob(t *testing.T, p Pipeline, job *Job, prev *records.Entry) *JobResult {
	t.Helper()
	res, err := p.Run(t.Context(), job, &RunContext{Previous: prev, Stats: stats.New()})
	require.NoError(t, err)
	require.NotNil(t, res.Entry)
	return res
}

func TestNew(t *testing.T) {
	f := newFixture(t)
	src := f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser)

	p, err := New("page", src, f.env)
	require.NoError(t, err)
	assert.Equal(t, "page", p.Name())
	assert.Equal(t, "page", p.EntryKind())
	assert.Equal(t, pagePassNum, p.PassNum())
	assert.Equal(t, "pages", p.RecordName())

	p, err = New("asset", src, f.env)
	require.NoError(t, err)
	assert.Equal(t, assetPassNum, p.PassNum())

	_, err = New("sass", src, f.env)
	require.ErrorIs(t, err, ErrUnknownPipeline)
}

func TestPagePipeline_RenderWithAssets(t *testing.T) {
	f := newFixture(t)
	f.write(t, "templates/default.html", `<html><title>{{ .Page.Title }}</title><body>{{ .Content }}<img src="{{ .Assets.photo }}"></body></html>`)
	f.write(t, "pages/blog/intro.md", "---\ntitle: Intro\n---\n# Heading\n\n![diagram](diagram.png)\n")
	f.write(t, "pages/blog/diagram.png", "png-bytes")
	f.write(t, "pages/blog/intro-assets/photo.jpg", "jpg-bytes")

	p, err := New("page", f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser), f.env)
	require.NoError(t, err)
	jobs := createJobs(t, p)
	require.Len(t, jobs, 1)
	assert.Equal(t, 0, jobs[0].Pass)
	assert.NotEmpty(t, jobs[0].ID)

	res := runJob(t, p, jobs[0], nil)
	require.True(t, res.Entry.Success(), res.Entry.Errors)
	assert.Equal(t, []string{"blog/intro.html"}, res.Entry.Outputs)
	assert.NotEmpty(t, res.Entry.Hash)

	html := f.out(t, "blog/intro.html")
	assert.Contains(t, html, "<title>Intro</title>")
	assert.Contains(t, html, `<img src="/blog/intro/photo.jpg">`)

	require.NotNil(t, res.NextPassJob)
	next := res.NextPassJob
	assert.Equal(t, 1, next.Pass)
	assert.Equal(t, jobs[0].Item.Spec, next.Item.Spec)
	assets, ok := next.Data[DataAssets].([]AssetCopy)
	require.True(t, ok)
	assert.Len(t, assets, 2)

	follow := runJob(t, p, next, nil)
	assert.Nil(t, follow.NextPassJob)
	assert.ElementsMatch(t, []string{"blog/intro/photo.jpg", "blog/diagram.png"}, follow.Entry.Outputs)
	assert.Equal(t, "jpg-bytes", f.out(t, "blog/intro/photo.jpg"))
	assert.Equal(t, "png-bytes", f.out(t, "blog/diagram.png"))

	require.NoError(t, p.MergeRecordEntry(follow.Entry, &MergeRecordContext{Entry: res.Entry, Job: next}))
	assert.ElementsMatch(t, []string{"blog/intro.html", "blog/intro/photo.jpg", "blog/diagram.png"}, res.Entry.Outputs)

	require.Error(t, p.MergeRecordEntry(follow.Entry, &MergeRecordContext{}))
}

func TestPagePipeline_ReuseAndForce(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pages/a.md", "# A\n")
	src := f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser)
	p, err := New("page", src, f.env)
	require.NoError(t, err)

	first := runJob(t, p, createJobs(t, p)[0], nil)
	require.True(t, first.Entry.Success())
	assert.False(t, first.Entry.Reused)

	second := runJob(t, p, createJobs(t, p)[0], first.Entry)
	assert.True(t, second.Entry.Reused)
	assert.Equal(t, first.Entry.Outputs, second.Entry.Outputs)

	f.write(t, "pages/a.md", "# A changed\n")
	third := runJob(t, p, createJobs(t, p)[0], first.Entry)
	assert.False(t, third.Entry.Reused)
	assert.NotEqual(t, first.Entry.Hash, third.Entry.Hash)

	require.NoError(t, os.Remove(filepath.Join(f.outDir, "a.html")))
	fourth := runJob(t, p, createJobs(t, p)[0], third.Entry)
	assert.False(t, fourth.Entry.Reused)
	assert.FileExists(t, filepath.Join(f.outDir, "a.html"))

	f.env.Force = true
	forced, err := New("page", src, f.env)
	require.NoError(t, err)
	fifth := runJob(t, forced, createJobs(t, forced)[0], fourth.Entry)
	assert.False(t, fifth.Entry.Reused)
}

func TestPagePipeline_ItemErrors(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pages/broken.md", "---\ntitle: [unterminated\n---\nbody\n")
	f.write(t, "pages/nolayout.md", "---\nlayout: missing\n---\nbody\n")
	p, err := New("page", f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser), f.env)
	require.NoError(t, err)

	jobs := createJobs(t, p)
	require.Len(t, jobs, 2)
	for _, job := range jobs {
		res := runJob(t, p, job, nil)
		assert.False(t, res.Entry.Success(), job.Item.Spec)
		assert.Empty(t, res.Entry.Outputs)
		assert.Nil(t, res.NextPassJob)
	}
}

func TestPagePipeline_Draft(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pages/wip.md", "---\ndraft: true\n---\nbody\n")
	p, err := New("page", f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser), f.env)
	require.NoError(t, err)

	res := runJob(t, p, createJobs(t, p)[0], nil)
	assert.True(t, res.Entry.Success())
	assert.Empty(t, res.Entry.Outputs)
	assert.NoFileExists(t, filepath.Join(f.outDir, "wip.html"))
}

func TestPagePipeline_CanceledContext(t *testing.T) {
	f := newFixture(t)
	f.write(t, "pages/a.md", "# A\n")
	p, err := New("page", f.source(t, "pages", config.SourceTypePages, "pages", config.RealmUser), f.env)
	require.NoError(t, err)
	job := createJobs(t, p)[0]

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err = p.Run(ctx, job, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestAssetPipeline(t *testing.T) {
	f := newFixture(t)
	f.write(t, "assets/css/site.css", "body{}")
	p, err := New("asset", f.source(t, "assets", config.SourceTypeAssets, "assets", config.RealmUser), f.env)
	require.NoError(t, err)

	jobs := createJobs(t, p)
	require.Len(t, jobs, 1)
	first := runJob(t, p, jobs[0], nil)
	require.True(t, first.Entry.Success())
	assert.Equal(t, []string{"css/site.css"}, first.Entry.Outputs)
	assert.Equal(t, "body{}", f.out(t, "css/site.css"))
	assert.Nil(t, first.NextPassJob)

	again := runJob(t, p, jobs[0], first.Entry)
	assert.True(t, again.Entry.Reused)

	f.write(t, "assets/css/site.css", "body{color:red}")
	changed := runJob(t, p, jobs[0], first.Entry)
	assert.False(t, changed.Entry.Reused)
	assert.Equal(t, "body{color:red}", f.out(t, "css/site.css"))
}

func TestCreateJobs_ThemeOverride(t *testing.T) {
	f := newFixture(t)
	f.write(t, "theme/pages/about.md", "# Theme about\n")
	f.write(t, "theme/pages/extra.md", "# Extra\n")
	p, err := New("page", f.source(t, "theme_pages", config.SourceTypePages, "theme/pages", config.RealmTheme), f.env)
	require.NoError(t, err)

	rec := records.NewRecord(p.RecordName())
	jobs, err := p.CreateJobs(&CreateJobsContext{Record: rec, Claimed: map[string]string{"about.html": "/site/pages/about.md"}})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Contains(t, jobs[0].Item.Spec, "extra.md")

	require.Len(t, rec.Entries, 1)
	assert.True(t, rec.Entries[0].Overridden)
	assert.True(t, rec.Success)
}

func TestCreateJobs_SourceError(t *testing.T) {
	f := newFixture(t)
	src, err := sources.New(config.SourceConfig{
		Name: "pages", Type: config.SourceTypePages, FSEndpoint: filepath.Join(f.root, "missing"), Realm: config.RealmUser,
	}, f.env.Site, func(p string) string { return p }, nil)
	require.NoError(t, err)
	p, err := New("page", src, f.env)
	require.NoError(t, err)

	_, err = p.CreateJobs(&CreateJobsContext{Record: records.NewRecord("pages")})
	require.Error(t, err)
}
