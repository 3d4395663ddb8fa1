package render

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayouts_FirstDirWins(t *testing.T) {
	user := t.TempDir()
	theme := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(user, "post.html"), []byte(`user:{{ .Page.Title }}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(theme, "post.html"), []byte(`theme:{{ .Page.Title }}`), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(theme, "default.html"), []byte(`theme-default:{{ .Content }}`), 0o600))

	l := NewLayouts([]string{user, theme})
	var sb strings.Builder
	require.NoError(t, l.Render(&sb, "post", PageData{Page: PageInfo{Title: "Hi"}}))
	assert.Equal(t, "user:Hi", sb.String())

	sb.Reset()
	require.NoError(t, l.Render(&sb, "", PageData{Content: "<p>x</p>"}))
	assert.Equal(t, "theme-default:<p>x</p>", sb.String())
}

func TestLayouts_Fallback(t *testing.T) {
	l := NewLayouts([]string{t.TempDir()})
	var sb strings.Builder
	require.NoError(t, l.Render(&sb, "", PageData{Site: SiteData{Title: "Site"}, Page: PageInfo{Title: "About"}, Content: "<p>body</p>"}))
	assert.Contains(t, sb.String(), "<title>About | Site</title>")
	assert.Contains(t, sb.String(), "<p>body</p>")

	require.Error(t, l.Render(&sb, "missing", PageData{}))
}

func TestLayouts_ParseError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.html"), []byte(`{{ .Broken`), 0o600))
	var sb strings.Builder
	require.Error(t, NewLayouts([]string{dir}).Render(&sb, "bad", PageData{}))
}

func TestLocalRefs(t *testing.T) {
	doc := []byte(`<p><img src="diagram.png"><img src="./diagram.png?v=2">
<a href="https://example.com/x.png">ext</a><a href="#top">top</a><a href="/abs.css">abs</a>
<link rel="stylesheet" href="css/page.css"><script src="../up.js"></script>
<a href="mailto:me@example.com">mail</a><video src="clip.mp4"></video></p>`)
	assert.Equal(t, []string{"clip.mp4", "css/page.css", "diagram.png"}, LocalRefs(doc))
	assert.Empty(t, LocalRefs([]byte("<p>nothing</p>")))
}

func TestAssetURL(t *testing.T) {
	assert.Equal(t, "/blog/2024/a/img.png", AssetURL("", "/blog/", "2024/a/img.png"))
	assert.Equal(t, "/img.png", AssetURL("%uri%", "", "/img.png"))
	assert.Equal(t, "https://cdn.example.com/img.png?v=1", AssetURL("https://cdn.example.com%uri%?v=1", "/", "img.png"))
}
