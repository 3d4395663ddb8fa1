// Package render turns rendered page bodies into finished HTML documents and
// inspects them for co-located assets.
package render

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultLayout is used when a page names none.
const DefaultLayout = "default"

const fallbackLayout = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{ .Page.Title }}{{ with .Site.Title }} | {{ . }}{{ end }}</title></head>
<body>
{{ .Content }}
</body>
</html>
`

// SiteData is the site-wide part of the template namespace.
type SiteData struct {
	Title  string
	Root   string
	Params map[string]any
}

// PageInfo describes the page being rendered.
type PageInfo struct {
	Title  string
	URL    string
	Date   time.Time
	Fields map[string]any
}

// PageData is what layouts are executed with.
type PageData struct {
	Site    SiteData
	Page    PageInfo
	Content template.HTML
	// Assets maps co-located asset file names to their URLs.
	Assets map[string]string
}

// Layouts resolves "<name>.html" across template dirs, first dir wins.
// Parsed templates are cached; Layouts is safe for concurrent use.
type Layouts struct {
	dirs []string

	mu     sync.Mutex
	parsed map[string]*template.Template
}

// NewLayouts creates a resolver over dirs.
func NewLayouts(dirs []string) *Layouts {
	return &Layouts{dirs: dirs, parsed: make(map[string]*template.Template)}
}

// Render executes the named layout into w. When name is the default layout
// and no file provides it, a built-in document shell is used.
func (l *Layouts) Render(w io.Writer, name string, data PageData) error {
	if name == "" {
		name = DefaultLayout
	}
	tmpl, err := l.lookup(name)
	if err != nil {
		return err
	}
	return tmpl.Execute(w, data)
}

func (l *Layouts) lookup(name string) (*template.Template, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.parsed[name]; ok {
		return t, nil
	}

	var t *template.Template
	for _, dir := range l.dirs {
		p := filepath.Join(dir, name+".html")
		// #nosec G304 -- template dirs come from the site configuration
		src, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read layout %s: %w", p, err)
		}
		t, err = template.New(name).Parse(string(src))
		if err != nil {
			return nil, fmt.Errorf("parse layout %s: %w", p, err)
		}
		break
	}
	if t == nil {
		if name != DefaultLayout {
			return nil, fmt.Errorf("layout %q not found in %v", name, l.dirs)
		}
		t = template.Must(template.New(name).Parse(fallbackLayout))
	}
	l.parsed[name] = t
	return t, nil
}
