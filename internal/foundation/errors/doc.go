// Package errors classifies bake failures so the CLI can pick exit codes
// and logs can carry the failing source or path.
//
// Per-item render failures are not errors in this sense; they are stored on
// the record entry that produced them.
//
//	err := errors.WrapError(err, errors.CategoryRecords, "failed to save bake records").
//		WithContext("path", path).
//		Fatal().
//		Build()
package errors
