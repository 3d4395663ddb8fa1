package baker

import (
	"errors"
	"os"

	foundationerrors "git.home.luguber.info/inful/bakery/internal/foundation/errors"
	"git.home.luguber.info/inful/bakery/internal/records"
)

// Cache invalidation reasons.
const (
	ReasonForced            = "forced"
	ReasonConfigChanged     = "configuration changed"
	ReasonRecordsInvalid    = "need bake records regeneration"
	ReasonNoPrevious        = "no previous bake records"
	ReasonTemplatesModified = "templates modified"
)

var errTemplateTouched = errors.New("template modified")

// invalidReason returns why prev cannot be trusted, or "" when it can. The
// configuration fingerprint is only stored once the bake persists.
func (b *Baker) invalidReason(prev *records.MultiRecord, force bool) (string, error) {
	changed, err := b.opts.Site.ConfigChanged()
	if err != nil {
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryCache, "failed to check configuration fingerprint").Build()
	}
	switch {
	case force:
		return ReasonForced, nil
	case changed:
		return ReasonConfigChanged, nil
	case prev.Invalidated:
		return ReasonRecordsInvalid, nil
	case prev.BakeTime.IsZero():
		return ReasonNoPrevious, nil
	}

	err = b.opts.Site.TemplateFiles(func(_ string, info os.FileInfo) error {
		if !info.ModTime().Before(prev.BakeTime) {
			return errTemplateTouched
		}
		return nil
	})
	switch {
	case errors.Is(err, errTemplateTouched):
		return ReasonTemplatesModified, nil
	case err != nil:
		return "", foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to scan templates").Build()
	}
	return "", nil
}
