package errors

import "maps"

// ErrorBuilder assembles a ClassifiedError.
type ErrorBuilder struct {
	err ClassifiedError
}

// NewError starts an error of the given category with SeverityError.
func NewError(category ErrorCategory, message string) *ErrorBuilder {
	return &ErrorBuilder{err: ClassifiedError{
		category: category,
		severity: SeverityError,
		message:  message,
	}}
}

// WrapError starts an error that keeps err as its cause.
func WrapError(err error, category ErrorCategory, message string) *ErrorBuilder {
	b := NewError(category, message)
	b.err.cause = err
	return b
}

// WithContext attaches a key/value pair.
func (b *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	b.err.context = b.err.context.Set(key, value)
	return b
}

// Fatal marks the error as one that aborts the bake.
func (b *ErrorBuilder) Fatal() *ErrorBuilder {
	b.err.severity = SeverityFatal
	return b
}

// Build returns the error. The builder may keep being used afterwards.
func (b *ErrorBuilder) Build() *ClassifiedError {
	e := b.err
	e.context = maps.Clone(b.err.context)
	return &e
}

// ConfigError reports an unusable site configuration.
func ConfigError(message string) *ErrorBuilder {
	return NewError(CategoryConfig, message).Fatal()
}

// ValidationError reports bad input from the command line or a caller.
func ValidationError(message string) *ErrorBuilder {
	return NewError(CategoryValidation, message).Fatal()
}

// NotFoundError reports a missing source, record or bake.
func NotFoundError(message string) *ErrorBuilder {
	return NewError(CategoryNotFound, message)
}

// BuildError reports a bake that finished with failed entries.
func BuildError(message string) *ErrorBuilder {
	return NewError(CategoryBuild, message)
}

// FileSystemError reports a source or output I/O failure.
func FileSystemError(message string) *ErrorBuilder {
	return NewError(CategoryFileSystem, message)
}
