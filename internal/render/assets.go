package render

import (
	"bytes"
	"net/url"
	"path"
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultAssetURLFormat renders asset URLs as plain site-relative paths.
const DefaultAssetURLFormat = "%uri%"

// AssetURL formats the URL of an output path. "%uri%" in format is replaced
// by the site root joined with outPath.
func AssetURL(format, siteRoot, outPath string) string {
	if format == "" {
		format = DefaultAssetURLFormat
	}
	if siteRoot == "" {
		siteRoot = "/"
	}
	uri := strings.TrimSuffix(siteRoot, "/") + "/" + strings.TrimPrefix(outPath, "/")
	return strings.ReplaceAll(format, "%uri%", uri)
}

var refAttrs = map[atom.Atom]string{
	atom.Img:    "src",
	atom.Script: "src",
	atom.Source: "src",
	atom.Video:  "src",
	atom.Audio:  "src",
	atom.Link:   "href",
	atom.A:      "href",
}

// LocalRefs returns the relative, same-directory-tree references of an HTML
// document: no scheme, no host, not rooted, not fragment-only. Query and
// fragment are stripped. Results are cleaned, unique and sorted; references
// escaping upwards ("../") are dropped.
func LocalRefs(doc []byte) []string {
	z := html.NewTokenizer(bytes.NewReader(doc))
	seen := make(map[string]struct{})
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		tok := z.Token()
		attr, ok := refAttrs[tok.DataAtom]
		if !ok {
			continue
		}
		for _, a := range tok.Attr {
			if a.Key != attr {
				continue
			}
			if ref, ok := localRef(a.Val); ok {
				seen[ref] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for r := range seen {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func localRef(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "/") {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	p := path.Clean(u.Path)
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", false
	}
	return p, true
}
