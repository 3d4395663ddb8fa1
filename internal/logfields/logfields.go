package logfields

import (
	"log/slog"
	"time"
)

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBakeID     = "bake_id"
	KeyJobID      = "job_id"
	KeySource     = "source"
	KeyPipeline   = "pipeline"
	KeyRealm      = "realm"
	KeyPass       = "pass"
	KeyItem       = "item"
	KeyRecord     = "record"
	KeyWorker     = "worker"
	KeyReason     = "reason"
	KeyPath       = "path"
	KeyOutDir     = "out_dir"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

func BakeID(id string) slog.Attr     { return slog.String(KeyBakeID, id) }
func JobID(id string) slog.Attr      { return slog.String(KeyJobID, id) }
func Source(name string) slog.Attr   { return slog.String(KeySource, name) }
func Pipeline(name string) slog.Attr { return slog.String(KeyPipeline, name) }
func Realm(r string) slog.Attr       { return slog.String(KeyRealm, r) }
func Pass(n int) slog.Attr           { return slog.Int(KeyPass, n) }
func Item(spec string) slog.Attr     { return slog.String(KeyItem, spec) }
func Record(name string) slog.Attr   { return slog.String(KeyRecord, name) }
func Worker(id int) slog.Attr        { return slog.Int(KeyWorker, id) }
func Reason(r string) slog.Attr      { return slog.String(KeyReason, r) }
func Path(p string) slog.Attr        { return slog.String(KeyPath, p) }
func OutDir(p string) slog.Attr      { return slog.String(KeyOutDir, p) }

// Duration reports d in fractional milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Float64(KeyDurationMS, float64(d)/float64(time.Millisecond))
}

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
