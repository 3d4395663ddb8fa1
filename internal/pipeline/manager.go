package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"git.home.luguber.info/inful/bakery/internal/logfields"
	"git.home.luguber.info/inful/bakery/internal/records"
	"git.home.luguber.info/inful/bakery/internal/sources"
)

// Info ties a pipeline to its source and scheduling bucket.
type Info struct {
	Pipeline Pipeline
	Source   sources.Source
	PassNum  int
	Realm    sources.Realm
}

// Manager owns the pipelines of one bake, keyed by source name.
type Manager struct {
	env     *Env
	history *records.MultiRecordHistory
	allowed []string
	logger  *slog.Logger

	infos map[string]*Info
	order []string
	diffs map[string]records.RecordDiff

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewManager creates a manager over the previous/current generation pair.
// An empty allowed list accepts every pipeline.
func NewManager(env *Env, history *records.MultiRecordHistory, allowed []string) *Manager {
	return &Manager{
		env:     env,
		history: history,
		allowed: allowed,
		logger:  env.logger(),
		infos:   make(map[string]*Info),
	}
}

// CreatePipeline instantiates the pipeline of src. It returns
// ErrPipelineExcluded when the filter rejects it and ErrUnknownPipeline when
// the source names a pipeline that does not exist.
func (m *Manager) CreatePipeline(src sources.Source) (*Info, error) {
	name := NameForSource(src)
	if len(m.allowed) > 0 && !slices.Contains(m.allowed, name) {
		return nil, fmt.Errorf("%w: %s (source %s)", ErrPipelineExcluded, name, src.Name())
	}
	if _, dup := m.infos[src.Name()]; dup {
		return nil, fmt.Errorf("pipeline already created for source %s", src.Name())
	}
	p, err := New(name, src, m.env)
	if err != nil {
		return nil, err
	}
	info := &Info{Pipeline: p, Source: src, PassNum: p.PassNum(), Realm: src.Realm()}
	m.infos[src.Name()] = info
	m.order = append(m.order, src.Name())
	return info, nil
}

// Pipelines returns every pipeline in creation order.
func (m *Manager) Pipelines() []*Info {
	out := make([]*Info, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.infos[name])
	}
	return out
}

// Pipeline returns the pipeline of a source, or nil.
func (m *Manager) Pipeline(sourceName string) *Info {
	return m.infos[sourceName]
}

// PassBuckets returns the distinct pass numbers, ascending.
func (m *Manager) PassBuckets() []int {
	var out []int
	for _, info := range m.infos {
		if !slices.Contains(out, info.PassNum) {
			out = append(out, info.PassNum)
		}
	}
	slices.Sort(out)
	return out
}

// PipelinesFor returns the pipelines of one pass bucket and realm, in creation order.
func (m *Manager) PipelinesFor(passNum int, realm sources.Realm) []*Info {
	var out []*Info
	for _, info := range m.Pipelines() {
		if info.PassNum == passNum && info.Realm == realm {
			out = append(out, info)
		}
	}
	return out
}

// BuildHistoryDiffs computes the diff of every managed record. Call once,
// after all passes.
func (m *Manager) BuildHistoryDiffs() {
	m.diffs = make(map[string]records.RecordDiff, len(m.infos))
	for _, info := range m.Pipelines() {
		name := info.Pipeline.RecordName()
		m.diffs[name] = m.history.Diff(name)
	}
}

// Diffs returns the diffs computed by BuildHistoryDiffs.
func (m *Manager) Diffs() map[string]records.RecordDiff {
	return m.diffs
}

// DeleteStaleOutputs removes outputs that no current entry produces any
// more: those of removed items, and those a rebuilt item stopped producing.
// Paths claimed by any current entry are kept. Missing files are ignored.
// It returns the deleted paths.
func (m *Manager) DeleteStaleOutputs() ([]string, error) {
	if m.diffs == nil {
		m.BuildHistoryDiffs()
	}
	claimed := m.history.Current.ClaimedOutputs()
	var deleted []string
	var errs []error
	remove := func(rel string) {
		if _, ok := claimed[rel]; ok {
			return
		}
		p := filepath.Join(m.env.OutDir, filepath.FromSlash(rel))
		err := os.Remove(p)
		switch {
		case err == nil:
			deleted = append(deleted, rel)
			m.logger.Info("Deleted stale output", logfields.Path(rel))
		case errors.Is(err, os.ErrNotExist):
		default:
			errs = append(errs, fmt.Errorf("delete %s: %w", rel, err))
		}
	}

	for _, info := range m.Pipelines() {
		name := info.Pipeline.RecordName()
		h := m.history.History(name)
		d := m.diffs[name]
		for _, spec := range d.Removed {
			for _, o := range h.Previous.GetEntry(spec).Outputs {
				remove(o)
			}
		}
		for _, spec := range d.Changed {
			cur := h.Current.GetEntry(spec)
			if cur == nil || !cur.Success() {
				continue
			}
			for _, o := range h.Previous.GetEntry(spec).Outputs {
				if !slices.Contains(cur.Outputs, o) {
					remove(o)
				}
			}
		}
	}
	slices.Sort(deleted)
	return deleted, errors.Join(errs...)
}

// CollapseRecords lets every pipeline compact its current record.
func (m *Manager) CollapseRecords() {
	for _, info := range m.Pipelines() {
		info.Pipeline.CollapseRecord(m.history.History(info.Pipeline.RecordName()))
	}
}

// ShutdownPipelines releases pipeline resources. Only the first call has an effect.
func (m *Manager) ShutdownPipelines() error {
	m.shutdownOnce.Do(func() {
		var errs []error
		for _, info := range m.Pipelines() {
			if err := info.Pipeline.Shutdown(); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", info.Source.Name(), err))
			}
		}
		m.shutdownErr = errors.Join(errs...)
	})
	return m.shutdownErr
}
