package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("builder fields", func(t *testing.T) {
		err := NewError(CategoryRecords, "failed to save bake records").
			Fatal().
			WithContext("path", "_counter/bake.records").
			Build()

		assert.Equal(t, CategoryRecords, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.True(t, err.IsFatal())
		assert.Equal(t, "failed to save bake records", err.Message())
		assert.Equal(t, "_counter/bake.records", err.Context()["path"])
	})

	t.Run("wrapped cause is reachable", func(t *testing.T) {
		cause := stderrors.New("disk full")
		err := WrapError(cause, CategoryFileSystem, "write records").Build()

		require.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "disk full")
		assert.Equal(t, "[filesystem:error] write records: disk full", err.Error())
	})

	t.Run("classification survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("bake: %w", NewError(CategoryPipeline, "no pipelines").Fatal().Build())

		assert.True(t, HasCategory(err, CategoryPipeline))
		assert.False(t, HasCategory(err, CategoryCache))
		assert.False(t, HasCategory(stderrors.New("plain"), CategoryInternal))
	})

	t.Run("built errors do not share context", func(t *testing.T) {
		b := BuildError("bake failed").WithContext("source", "pages")
		first := b.Build()
		second := b.WithContext("source", "posts").Build()

		assert.Equal(t, "pages", first.Context()["source"])
		assert.Equal(t, "posts", second.Context()["source"])
	})
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
	}{
		{"ConfigError", ConfigError("x"), CategoryConfig, SeverityFatal},
		{"ValidationError", ValidationError("x"), CategoryValidation, SeverityFatal},
		{"NotFoundError", NotFoundError("x"), CategoryNotFound, SeverityError},
		{"BuildError", BuildError("x"), CategoryBuild, SeverityError},
		{"FileSystemError", FileSystemError("x"), CategoryFileSystem, SeverityError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			assert.Equal(t, tt.category, err.Category())
			assert.Equal(t, tt.severity, err.Severity())
		})
	}
}

func TestErrorContextAttrs(t *testing.T) {
	var c ErrorContext
	c = c.Set("source", "posts").Set("path", "a.md")

	attrs := c.Attrs()
	require.Len(t, attrs, 2)
	assert.Equal(t, "path", attrs[0].Key)
	assert.Equal(t, "source", attrs[1].Key)
	assert.Empty(t, ErrorContext(nil).Attrs())
}

func TestCLIErrorAdapter_ExitCodeFor(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.Default())

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"nil error", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"not found", NotFoundError("unknown source").Build(), 3},
		{"config", ConfigError("bad config").Build(), 7},
		{"pipeline", NewError(CategoryPipeline, "nothing to do").Build(), 11},
		{"build", BuildError("bake finished with errors").Build(), 11},
		{"runtime", NewError(CategoryRuntime, "bake canceled").Build(), 12},
		{"wrapped classified", fmt.Errorf("outer: %w", NewError(CategoryRecords, "save").Build()), 11},
		{"unclassified", stderrors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, adapter.ExitCodeFor(tt.err))
		})
	}
}

func TestCLIErrorAdapter_FormatError(t *testing.T) {
	err := ConfigError("missing site title").WithContext("file", "config.yaml").Build()

	quiet := NewCLIErrorAdapter(false, nil)
	assert.Equal(t, "missing site title", quiet.FormatError(err))

	verbose := NewCLIErrorAdapter(true, nil)
	out := verbose.FormatError(err)
	assert.Contains(t, out, "[config:fatal]")
	assert.Contains(t, out, "file: config.yaml")
}

func TestCLIErrorAdapter_LogsContext(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&buf, nil)))

	adapter.logError(FileSystemError("cannot read source").WithContext("source", "posts").Build())

	assert.Contains(t, buf.String(), "category=filesystem")
	assert.Contains(t, buf.String(), "source=posts")
	assert.Contains(t, buf.String(), "fatal=false")
}
