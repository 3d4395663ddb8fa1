package errors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// CLIErrorAdapter handles error presentation and exit code determination for the CLI.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates a new CLI error adapter.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor determines the appropriate exit code for an error.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	classified, ok := AsClassified(err)
	if !ok {
		return 1
	}
	switch classified.Category() {
	case CategoryValidation:
		return 2
	case CategoryNotFound:
		return 3
	case CategoryConfig:
		return 7
	case CategoryInternal:
		return 10
	case CategoryBuild, CategoryPipeline, CategoryFileSystem, CategoryRecords, CategoryCache:
		return 11
	case CategoryWorker, CategoryRuntime:
		return 12
	default:
		return 1
	}
}

// HandleError logs err, prints a short message and exits with the mapped code.
func (a *CLIErrorAdapter) HandleError(err error) {
	if err == nil {
		return
	}
	a.logError(err)
	fmt.Fprintln(os.Stderr, "Error:", a.FormatError(err))
	os.Exit(a.ExitCodeFor(err))
}

// FormatError renders err for terminal output.
func (a *CLIErrorAdapter) FormatError(err error) string {
	classified, ok := AsClassified(err)
	if !ok {
		return err.Error()
	}
	if !a.verbose {
		return classified.Message()
	}
	msg := classified.Error()
	for _, attr := range classified.Context().Attrs() {
		msg += fmt.Sprintf("\n  %s: %v", attr.Key, attr.Value)
	}
	return msg
}

func (a *CLIErrorAdapter) logError(err error) {
	attrs := []slog.Attr{slog.String("error", err.Error())}
	if classified, ok := AsClassified(err); ok {
		attrs = append(attrs,
			slog.String("category", string(classified.Category())),
			slog.Bool("fatal", classified.IsFatal()))
		attrs = append(attrs, classified.Context().Attrs()...)
	}
	a.logger.LogAttrs(context.Background(), slog.LevelError, "Command failed", attrs...)
}
