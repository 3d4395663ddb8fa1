package records

import (
	"maps"
	"slices"
	"time"

	"git.home.luguber.info/inful/bakery/internal/stats"
)

// FormatVersion is bumped whenever the on-disk layout changes. Files written
// with another version are never trusted.
const FormatVersion = 3

// Generic entry kind used when a pipeline does not declare one.
const KindGeneric = "generic"

// Entry is the durable outcome of building one content item.
type Entry struct {
	ItemSpec string   `json:"item_spec"`
	Kind     string   `json:"kind"`
	Errors   []string `json:"errors,omitempty"`
	// Route is the output path the item maps to, known before it is built.
	Route string `json:"route,omitempty"`
	// Outputs are slash paths relative to the output directory.
	Outputs []string `json:"outputs,omitempty"`
	// Hash is the content signature the item was built from.
	Hash       string `json:"hash,omitempty"`
	Overridden bool   `json:"overridden,omitempty"`
	Reused     bool   `json:"reused,omitempty"`
	// Payload carries pipeline data between passes. Collapsing drops it.
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEntry returns an empty entry of the given kind.
func NewEntry(kind, spec string) *Entry {
	if kind == "" {
		kind = KindGeneric
	}
	return &Entry{ItemSpec: spec, Kind: kind}
}

// Success reports whether the entry carries no errors.
func (e *Entry) Success() bool { return len(e.Errors) == 0 }

// AddError appends an error message.
func (e *Entry) AddError(msg string) { e.Errors = append(e.Errors, msg) }

// AddOutput appends an output path unless already present.
func (e *Entry) AddOutput(p string) {
	if !slices.Contains(e.Outputs, p) {
		e.Outputs = append(e.Outputs, p)
	}
}

// Clone returns a deep copy, payload excluded from deep copying.
func (e *Entry) Clone() *Entry {
	c := *e
	c.Errors = slices.Clone(e.Errors)
	c.Outputs = slices.Clone(e.Outputs)
	c.Payload = maps.Clone(e.Payload)
	return &c
}

// Record holds the entries of one content source, in completion order.
type Record struct {
	Name    string   `json:"name"`
	Success bool     `json:"success"`
	Entries []*Entry `json:"entries"`

	index map[string]int
}

// NewRecord returns an empty, successful record.
func NewRecord(name string) *Record {
	return &Record{Name: name, Success: true}
}

func (r *Record) reindex() {
	r.index = make(map[string]int, len(r.Entries))
	for i, e := range r.Entries {
		r.index[e.ItemSpec] = i
	}
}

// AddEntry appends e. A failed entry marks the record as failed.
func (r *Record) AddEntry(e *Entry) {
	if r.index == nil {
		r.reindex()
	}
	r.index[e.ItemSpec] = len(r.Entries)
	r.Entries = append(r.Entries, e)
	if !e.Success() {
		r.Success = false
	}
}

// GetEntry returns the entry for spec, or nil.
func (r *Record) GetEntry(spec string) *Entry {
	if r == nil {
		return nil
	}
	if r.index == nil {
		r.reindex()
	}
	i, ok := r.index[spec]
	if !ok {
		return nil
	}
	return r.Entries[i]
}

// Specs returns the item specs in entry order.
func (r *Record) Specs() []string {
	out := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, e.ItemSpec)
	}
	return out
}

// Recompute sets Success to the AND of every entry.
func (r *Record) Recompute() bool {
	r.Success = true
	for _, e := range r.Entries {
		if !e.Success() {
			r.Success = false
			break
		}
	}
	return r.Success
}

// MultiRecord is one bake generation.
type MultiRecord struct {
	Version          int                   `json:"version"`
	BakeID           string                `json:"bake_id,omitempty"`
	BakeTime         time.Time             `json:"bake_time"`
	OutDir           string                `json:"out_dir"`
	IncrementalCount int                   `json:"incremental_count"`
	Invalidated      bool                  `json:"invalidated"`
	Success          bool                  `json:"success"`
	SourceRevision   string                `json:"source_revision,omitempty"`
	Stats            *stats.ExecutionStats `json:"stats,omitempty"`
	Records          map[string]*Record    `json:"records"`
}

// NewMultiRecord returns an empty, successful generation at the current format version.
func NewMultiRecord() *MultiRecord {
	return &MultiRecord{
		Version: FormatVersion,
		Success: true,
		Stats:   stats.New(),
		Records: make(map[string]*Record),
	}
}

// GetRecord returns the named record, creating it when autoCreate is set.
func (m *MultiRecord) GetRecord(name string, autoCreate bool) *Record {
	if r, ok := m.Records[name]; ok {
		return r
	}
	if !autoCreate {
		return nil
	}
	if m.Records == nil {
		m.Records = make(map[string]*Record)
	}
	r := NewRecord(name)
	m.Records[name] = r
	return r
}

// RecordNames returns record names sorted.
func (m *MultiRecord) RecordNames() []string {
	return slices.Sorted(maps.Keys(m.Records))
}

// ClaimedOutputs maps every output path to the spec of the entry producing it.
// Overridden entries claim nothing.
func (m *MultiRecord) ClaimedOutputs() map[string]string {
	out := make(map[string]string)
	for _, r := range m.Records {
		for _, e := range r.Entries {
			if e.Overridden {
				continue
			}
			for _, p := range e.Outputs {
				out[p] = e.ItemSpec
			}
		}
	}
	return out
}

// ClaimedRoutes is ClaimedOutputs plus the routes of entries that produced
// nothing, such as failed items and drafts. Higher-precedence items keep their
// route even when they did not build.
func (m *MultiRecord) ClaimedRoutes() map[string]string {
	out := m.ClaimedOutputs()
	for _, r := range m.Records {
		for _, e := range r.Entries {
			if e.Overridden || e.Route == "" {
				continue
			}
			if _, ok := out[e.Route]; !ok {
				out[e.Route] = e.ItemSpec
			}
		}
	}
	return out
}

// Recompute refreshes every record's Success and sets the generation's
// Success to their AND. A generation already marked failed stays failed.
func (m *MultiRecord) Recompute() bool {
	for _, r := range m.Records {
		if !r.Recompute() {
			m.Success = false
		}
	}
	return m.Success
}

// EntryCount returns the number of entries across all records.
func (m *MultiRecord) EntryCount() int {
	n := 0
	for _, r := range m.Records {
		n += len(r.Entries)
	}
	return n
}

// FailedEntryCount returns the number of entries with errors.
func (m *MultiRecord) FailedEntryCount() int {
	n := 0
	for _, r := range m.Records {
		for _, e := range r.Entries {
			if !e.Success() {
				n++
			}
		}
	}
	return n
}
