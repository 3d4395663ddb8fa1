package logfields

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStringHelpers(t *testing.T) {
	cases := []struct {
		attr slog.Attr
		key  string
		val  string
	}{
		{BakeID("b1"), KeyBakeID, "b1"},
		{JobID("j1"), KeyJobID, "j1"},
		{Source("pages"), KeySource, "pages"},
		{Pipeline("page"), KeyPipeline, "page"},
		{Realm("theme"), KeyRealm, "theme"},
		{Item("pages/a.md"), KeyItem, "pages/a.md"},
		{Record("pages"), KeyRecord, "pages"},
		{Reason("forced"), KeyReason, "forced"},
		{Path("/tmp/x"), KeyPath, "/tmp/x"},
		{OutDir("_counter"), KeyOutDir, "_counter"},
	}
	for _, c := range cases {
		assert.Equal(t, c.key, c.attr.Key)
		assert.Equal(t, c.val, c.attr.Value.String())
	}
}

func TestNumericHelpers(t *testing.T) {
	assert.Equal(t, int64(3), Pass(3).Value.Int64())
	assert.Equal(t, int64(2), Worker(2).Value.Int64())
	assert.InDelta(t, 1500.0, Duration(1500*time.Millisecond).Value.Float64(), 0.001)
}

func TestError(t *testing.T) {
	assert.Equal(t, "", Error(nil).Value.String())
	assert.Equal(t, "boom", Error(errors.New("boom")).Value.String())
}
