package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/sources"
	"git.home.luguber.info/inful/bakery/internal/stats"
)

type base struct {
	name    string
	kind    string
	passNum int
	src     sources.Source
	env     *Env
	logger  *slog.Logger
}

func newBase(name, kind string, passNum int, src sources.Source, env *Env) base {
	return base{
		name:    name,
		kind:    kind,
		passNum: passNum,
		src:     src,
		env:     env,
		logger:  env.logger().With(logfields.Pipeline(name), logfields.Source(src.Name())),
	}
}

func (b *base) Name() string           { return b.name }
func (b *base) PassNum() int           { return b.passNum }
func (b *base) EntryKind() string      { return b.kind }
func (b *base) Source() sources.Source { return b.src }
func (b *base) RecordName() string     { return b.src.Name() }
func (b *base) Shutdown() error        { return nil }

// CreateJobs emits one job per item. Items of a non-user realm whose route
// is already claimed in this generation are recorded as overridden instead.
func (b *base) CreateJobs(ctx *CreateJobsContext) ([]*Job, error) {
	var jobs []*Job
	for item, err := range b.src.Items() {
		if err != nil {
			return nil, err
		}
		route, rerr := b.src.Route(item)
		if rerr != nil {
			route = ""
		}
		if b.src.Realm() != sources.RealmUser && ctx.Record != nil && route != "" {
			if owner, ok := ctx.Claimed[route]; ok {
				b.logger.Debug("Item overridden by another realm",
					logfields.Item(item.Spec), logfields.Path(route), slog.String("owner", owner))
				e := records.NewEntry(b.kind, item.Spec)
				e.Overridden = true
				ctx.Record.AddEntry(e)
				continue
			}
		}
		jobs = append(jobs, &Job{
			ID:         uuid.NewString(),
			SourceName: b.src.Name(),
			RecordName: b.RecordName(),
			Item:       item,
			Route:      route,
			Pass:       ctx.Pass,
		})
	}
	return jobs, nil
}

// MergeRecordEntry appends outputs and errors of a later pass.
func (b *base) MergeRecordEntry(newEntry *records.Entry, mc *MergeRecordContext) error {
	if mc == nil || mc.Entry == nil {
		return fmt.Errorf("no entry to merge into for %s", newEntry.ItemSpec)
	}
	for _, p := range newEntry.Outputs {
		mc.Entry.AddOutput(p)
	}
	mc.Entry.Errors = append(mc.Entry.Errors, newEntry.Errors...)
	return nil
}

// CollapseRecord drops the transient payload of every current entry.
func (b *base) CollapseRecord(h *records.RecordHistory) {
	if h == nil || h.Current == nil {
		return
	}
	for _, e := range h.Current.Entries {
		e.Payload = nil
	}
}

// outPath maps a route to a file in the output directory.
func (b *base) outPath(route string) string {
	return filepath.Join(b.env.OutDir, filepath.FromSlash(route))
}

// reuse returns a copy of prev when the item can be skipped: not forced,
// previously successful, same hash, and every output still on disk.
func (b *base) reuse(prev *records.Entry, hash string) *records.Entry {
	if prev == nil || b.env.Force || !prev.Success() || prev.Overridden || prev.Hash != hash || len(prev.Outputs) == 0 {
		return nil
	}
	for _, o := range prev.Outputs {
		if _, err := os.Stat(b.outPath(o)); err != nil {
			return nil
		}
	}
	e := prev.Clone()
	e.Kind = b.kind
	e.Reused = true
	e.Payload = nil
	return e
}

func ensureRunContext(rc *RunContext) *RunContext {
	if rc == nil {
		rc = &RunContext{}
	}
	if rc.Stats == nil {
		rc.Stats = stats.New()
	}
	return rc
}

func hashFile(path string) (string, error) {
	// #nosec G304 -- path comes from a content source
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	// #nosec G304 -- path comes from a content source
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst) // #nosec G304 -- destination derives from the output dir
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644) // #nosec G306 -- baked output is public
}
