// Package markdown renders page bodies with goldmark.
package markdown

import (
	"bytes"

	"github.com/yuin/goldmark"
	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	gmhtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// Options controls rendering.
type Options struct {
	// Unsafe lets raw HTML in page bodies through.
	Unsafe bool
}

// Renderer converts Markdown to HTML. It is safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a renderer with GitHub-flavoured extensions and heading IDs.
func New(opts Options) *Renderer {
	rendererOpts := []goldmark.Option{
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	}
	if opts.Unsafe {
		rendererOpts = append(rendererOpts, goldmark.WithRendererOptions(gmhtml.WithUnsafe()))
	}
	return &Renderer{md: goldmark.New(rendererOpts...)}
}

// Render converts body (front matter already removed) to HTML.
func (r *Renderer) Render(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FirstHeading returns the text of the first level-1 heading, or "".
func (r *Renderer) FirstHeading(body []byte) string {
	root := r.md.Parser().Parse(text.NewReader(body))
	var title string
	_ = gmast.Walk(root, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		h, ok := n.(*gmast.Heading)
		if !ok || h.Level != 1 {
			return gmast.WalkContinue, nil
		}
		title = string(headingText(h, body))
		return gmast.WalkStop, nil
	})
	return title
}

func headingText(n gmast.Node, source []byte) []byte {
	var buf bytes.Buffer
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*gmast.Text); ok {
			buf.Write(t.Segment.Value(source))
			continue
		}
		buf.Write(headingText(c, source))
	}
	return buf.Bytes()
}
