// Package frontmatter splits YAML front matter from page bodies and computes
// the content signature pages are rebuilt on.
package frontmatter

import (
	"bytes"
	"errors"

	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter indicates the document opened a front matter
// block but never closed it.
var ErrMissingClosingDelimiter = errors.New("front matter start delimiter found but closing delimiter is missing")

// Well-known front matter keys.
const (
	KeyTitle  = "title"
	KeyLayout = "layout"
	KeyDraft  = "draft"
)

// Page is a parsed page source.
type Page struct {
	Fields map[string]any
	Body   []byte
	// HadFrontMatter is false when the document carried no delimiters.
	HadFrontMatter bool
}

// Split separates `---` delimited front matter from the body. CRLF documents
// are supported. Without an opening delimiter the whole input is the body.
func Split(content []byte) (fm []byte, body []byte, had bool, err error) {
	nl := detectNewline(content)
	delim := []byte("---" + nl)
	if !bytes.HasPrefix(content, delim) {
		return nil, content, false, nil
	}

	rest := content[len(delim):]
	if bytes.HasPrefix(rest, delim) {
		return []byte{}, rest[len(delim):], true, nil
	}

	closing := []byte(nl + "---" + nl)
	idx := bytes.Index(rest, closing)
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte(nl+"---")) {
			return rest[:len(rest)-len("---")], []byte{}, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return rest[:idx+len(nl)], rest[idx+len(closing):], true, nil
}

// Parse splits content and decodes the front matter.
func Parse(content []byte) (*Page, error) {
	fm, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{}
	if len(fm) > 0 {
		if err := yaml.Unmarshal(fm, &fields); err != nil {
			return nil, err
		}
		if fields == nil {
			fields = map[string]any{}
		}
	}
	return &Page{Fields: fields, Body: body, HadFrontMatter: had}, nil
}

// String returns the string value of key, or "".
func (p *Page) String(key string) string {
	s, _ := p.Fields[key].(string)
	return s
}

// Title returns the "title" field.
func (p *Page) Title() string { return p.String(KeyTitle) }

// Layout returns the "layout" field.
func (p *Page) Layout() string { return p.String(KeyLayout) }

// Draft reports whether the page is marked as a draft.
func (p *Page) Draft() bool {
	b, _ := p.Fields[KeyDraft].(bool)
	return b
}

func detectNewline(content []byte) string {
	if i := bytes.IndexByte(content, '\n'); i > 0 && content[i-1] == '\r' {
		return "\r\n"
	}
	return "\n"
}
