package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bakery/internal/cache"
	"git.home.luguber.info/inful/bakery/internal/frontmatter"
	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/markdown"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/render"
	"git.home.luguber.info/inful/bakery/internal/sources"
)

const (
	pagePassNum = 10
	// DataAssets is the follow-up job payload key listing assets to copy.
	DataAssets = "assets"
)

// AssetCopy is one co-located asset copied next to a page.
type AssetCopy struct {
	Src string // absolute source file
	Out string // slash path relative to the output dir
}

// PagePipeline renders pages. Pass 0 renders the page and, when it has
// co-located assets, emits a single follow-up job that copies them.
type PagePipeline struct {
	base
	md      *markdown.Renderer
	layouts *render.Layouts
	renders *cache.Region
}

func newPagePipeline(src sources.Source, env *Env) *PagePipeline {
	p := &PagePipeline{
		base:    newBase(sources.PipelinePage, sources.PipelinePage, pagePassNum, src, env),
		md:      markdown.New(markdown.Options{Unsafe: true}),
		layouts: render.NewLayouts(env.TemplatesDirs),
	}
	if env.Cache != nil {
		region, err := env.Cache.GetCache(cache.Renders)
		if err != nil {
			p.logger.Warn("Render cache unavailable", logfields.Error(err))
		} else {
			p.renders = region
		}
	}
	return p
}

func (p *PagePipeline) Run(ctx context.Context, job *Job, rc *RunContext) (*JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc = ensureRunContext(rc)
	if job.Pass > 0 {
		return p.copyAssets(job, rc), nil
	}
	return p.renderPage(job, rc), nil
}

func (p *PagePipeline) renderPage(job *Job, rc *RunContext) *JobResult {
	start := time.Now()
	entry := records.NewEntry(p.kind, job.Item.Spec)
	res := &JobResult{Entry: entry}
	srcPath := filepath.FromSlash(job.Item.Spec)

	route, err := p.src.Route(job.Item)
	if err != nil {
		entry.AddError(err.Error())
		return res
	}
	entry.Route = route

	// #nosec G304 -- spec comes from a content source
	data, err := os.ReadFile(srcPath)
	if err != nil {
		entry.AddError(fmt.Sprintf("read page: %v", err))
		return res
	}
	page, err := frontmatter.Parse(data)
	if err != nil {
		entry.AddError(fmt.Sprintf("parse front matter: %v", err))
		return res
	}
	assets := p.colocatedAssets(srcPath, route)

	entry.Hash, err = p.signature(page, assets)
	if err != nil {
		entry.AddError(fmt.Sprintf("fingerprint: %v", err))
		return res
	}
	if page.Draft() {
		rc.Stats.StepCounter("pages_draft", 1)
		return res
	}
	if reused := p.reuse(rc.Previous, entry.Hash); reused != nil {
		rc.Stats.StepCounter("pages_reused", 1)
		reused.Route = route
		return &JobResult{Entry: reused}
	}

	body, err := p.body(entry.Hash, page, job.Item)
	if err != nil {
		entry.AddError(fmt.Sprintf("render markdown: %v", err))
		return res
	}

	assetURLs := make(map[string]string, len(assets))
	for _, a := range assets {
		assetURLs[strings.TrimSuffix(path.Base(a.Out), path.Ext(a.Out))] = render.AssetURL(p.env.AssetURLFormat, p.env.Site.Root, a.Out)
	}
	title := page.Title()
	if title == "" {
		title = p.md.FirstHeading(page.Body)
	}
	if title == "" {
		title = sources.TitleFromSlug(strings.TrimSuffix(path.Base(route), ".html"))
	}
	pd := render.PageData{
		Site: render.SiteData{Title: p.env.Site.Title, Root: p.env.Site.Root, Params: p.env.Site.Params},
		Page: render.PageInfo{
			Title:  title,
			URL:    render.AssetURL("", p.env.Site.Root, route),
			Fields: page.Fields,
		},
		// #nosec G203 -- page bodies are authored site content
		Content: template.HTML(body),
		Assets:  assetURLs,
	}
	if d, ok := job.Item.Metadata[sources.MetaDate].(time.Time); ok {
		pd.Page.Date = d
	}

	var out bytes.Buffer
	if err := p.layouts.Render(&out, page.Layout(), pd); err != nil {
		entry.AddError(fmt.Sprintf("render layout: %v", err))
		return res
	}
	if err := writeFile(p.outPath(route), out.Bytes()); err != nil {
		entry.AddError(fmt.Sprintf("write page: %v", err))
		return res
	}
	entry.AddOutput(route)
	rc.Stats.StepCounter("pages_rendered", 1)
	rc.Stats.TimeSince("page_render", start)

	assets = p.referencedAssets(srcPath, route, out.Bytes(), assets)
	if len(assets) > 0 {
		entry.Payload = map[string]any{DataAssets: len(assets)}
		res.NextPassJob = &Job{
			ID:         uuid.NewString(),
			SourceName: job.SourceName,
			RecordName: job.RecordName,
			Item:       job.Item,
			Route:      route,
			Pass:       job.Pass + 1,
			Data:       map[string]any{DataAssets: assets},
		}
	}
	return res
}

// signature combines the page fingerprint with the co-located asset files,
// so touching an asset rebuilds its page.
func (p *PagePipeline) signature(page *frontmatter.Page, assets []AssetCopy) (string, error) {
	fp, err := frontmatter.Fingerprint(page.Fields, page.Body)
	if err != nil {
		return "", err
	}
	if len(assets) == 0 {
		return fp, nil
	}
	h := sha256.New()
	h.Write([]byte(fp))
	for _, a := range assets {
		info, err := os.Stat(a.Src)
		if err != nil {
			continue
		}
		fmt.Fprintf(h, "\x00%s\x00%d\x00%d", a.Out, info.Size(), info.ModTime().UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// body renders the page body, going through the renders cache region.
func (p *PagePipeline) body(hash string, page *frontmatter.Page, item sources.ContentItem) ([]byte, error) {
	key := hash + ".html"
	if p.renders != nil && !p.env.Force && p.renders.Has(key) {
		if cached, err := p.renders.Read(key); err == nil {
			return cached, nil
		}
	}
	var out []byte
	if format, _ := item.Metadata[sources.MetaFormat].(string); format == "html" {
		out = page.Body
	} else {
		var err error
		if out, err = p.md.Render(page.Body); err != nil {
			return nil, err
		}
	}
	if p.renders != nil {
		if err := p.renders.Write(key, out); err != nil {
			p.logger.Warn("Failed to cache render", logfields.Item(item.Spec), logfields.Error(err))
		}
	}
	return out, nil
}

// colocatedAssets lists files in the "<stem>-assets" directory next to the
// page. They are published under the page route without its extension.
func (p *PagePipeline) colocatedAssets(srcPath, route string) []AssetCopy {
	dir := strings.TrimSuffix(srcPath, filepath.Ext(srcPath)) + sources.AssetsDirSuffix
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	outDir := strings.TrimSuffix(route, path.Ext(route))
	var out []AssetCopy
	for _, de := range entries {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		out = append(out, AssetCopy{
			Src: filepath.Join(dir, de.Name()),
			Out: path.Join(outDir, de.Name()),
		})
	}
	return out
}

// referencedAssets adds files the rendered page links to relatively and that
// exist next to the page source.
func (p *PagePipeline) referencedAssets(srcPath, route string, doc []byte, assets []AssetCopy) []AssetCopy {
	seen := make(map[string]bool, len(assets))
	for _, a := range assets {
		seen[a.Out] = true
	}
	srcDir := filepath.Dir(srcPath)
	for _, ref := range render.LocalRefs(doc) {
		if p.isPage(ref) {
			continue
		}
		full := filepath.Join(srcDir, filepath.FromSlash(ref))
		info, err := os.Stat(full)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		out := path.Join(path.Dir(route), ref)
		if seen[out] {
			continue
		}
		seen[out] = true
		assets = append(assets, AssetCopy{Src: full, Out: out})
	}
	return assets
}

func (p *PagePipeline) isPage(ref string) bool {
	ext := strings.TrimPrefix(path.Ext(ref), ".")
	return slices.Contains(p.env.Site.Formats, ext)
}

// copyAssets runs the follow-up pass of a page.
func (p *PagePipeline) copyAssets(job *Job, rc *RunContext) *JobResult {
	entry := records.NewEntry(p.kind, job.Item.Spec)
	assets, _ := job.Data[DataAssets].([]AssetCopy)
	for _, a := range assets {
		if err := copyFile(a.Src, p.outPath(a.Out)); err != nil {
			entry.AddError(fmt.Sprintf("copy asset %s: %v", a.Out, err))
			continue
		}
		entry.AddOutput(a.Out)
	}
	rc.Stats.StepCounter("page_assets_copied", len(entry.Outputs))
	return &JobResult{Entry: entry}
}
