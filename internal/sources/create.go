package sources

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/frontmatter"
)

// MetaConfig holds the initial front matter of a newly created item.
const MetaConfig = "config"

// CreateArgs are the authoring inputs for a new item.
type CreateArgs struct {
	// Date is "today", "tomorrow", "+N" (days from today) or "YYYY/MM/DD".
	Date string
	Slug string
}

func (a CreateArgs) resolveDate(now time.Time) (time.Time, error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case a.Date == "" || a.Date == "today":
		return today, nil
	case a.Date == "tomorrow":
		return today.AddDate(0, 0, 1), nil
	case strings.HasPrefix(a.Date, "+"):
		n, err := strconv.Atoi(a.Date[1:])
		if err != nil {
			return time.Time{}, foundationerrors.ValidationError("date offsets must be numbers").
				WithContext("date", a.Date).Build()
		}
		return today.AddDate(0, 0, n), nil
	}

	parts := strings.Split(a.Date, "/")
	if len(parts) != 3 {
		return time.Time{}, foundationerrors.ValidationError("dates must be of the form YEAR/MONTH/DAY").
			WithContext("date", a.Date).Build()
	}
	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, foundationerrors.ValidationError("dates must be of the form YEAR/MONTH/DAY").
				WithContext("date", a.Date).Build()
		}
		ymd[i] = n
	}
	d := time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, now.Location())
	if int(d.Month()) != ymd[1] || d.Day() != ymd[2] {
		return time.Time{}, foundationerrors.ValidationError("date does not exist").
			WithContext("date", a.Date).Build()
	}
	return d, nil
}

// FieldType is the kind of value an interactive field expects.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
)

// InteractiveField describes one authoring prompt.
type InteractiveField struct {
	Name    string
	Type    FieldType
	Default any
}

// TitleFromSlug turns "my-first_post" into "My First Post".
func TitleFromSlug(slug string) string {
	s := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}

// Scaffold writes the new item to disk with its initial front matter. It
// refuses to overwrite an existing file.
func Scaffold(item ContentItem) error {
	p := filepath.FromSlash(item.Spec)
	if _, err := os.Stat(p); err == nil {
		return foundationerrors.ValidationError("content already exists").
			WithContext("path", p).Build()
	}

	fields, _ := item.Metadata[MetaConfig].(map[string]any)
	doc, err := frontmatter.Compose(fields, []byte("\n"))
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to encode front matter").Build()
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to create content directory").
			WithContext("path", p).Build()
	}
	if err := os.WriteFile(p, doc, 0o600); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write content").
			WithContext("path", p).Build()
	}
	return nil
}
