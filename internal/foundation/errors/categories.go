package errors

import (
	"log/slog"
	"slices"
)

// ErrorCategory says which part of a bake an error came from.
type ErrorCategory string

const (
	// Input problems, reported before any work starts.
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"
	CategoryNotFound   ErrorCategory = "not_found"

	// Bake problems.
	CategoryBuild      ErrorCategory = "build"
	CategoryPipeline   ErrorCategory = "pipeline"
	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryRecords    ErrorCategory = "records"
	CategoryCache      ErrorCategory = "cache"

	// Execution problems.
	CategoryWorker   ErrorCategory = "worker"
	CategoryRuntime  ErrorCategory = "runtime"
	CategoryInternal ErrorCategory = "internal"
)

// ErrorSeverity tells callers how far an error unwinds.
type ErrorSeverity string

const (
	SeverityFatal ErrorSeverity = "fatal" // aborts the bake
	SeverityError ErrorSeverity = "error" // fails the current operation
)

// ErrorContext holds the identifiers (source, path, record) an error refers to.
type ErrorContext map[string]any

// Set adds or replaces a value, allocating the map when needed.
func (c ErrorContext) Set(key string, value any) ErrorContext {
	if c == nil {
		c = make(ErrorContext)
	}
	c[key] = value
	return c
}

// Attrs renders the context as slog attributes in key order.
func (c ErrorContext) Attrs() []slog.Attr {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, c[k]))
	}
	return attrs
}
