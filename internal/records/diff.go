package records

import (
	"maps"
	"slices"
)

// RecordDiff lists item specs that appeared, disappeared or changed between
// two generations of one record.
type RecordDiff struct {
	Added   []string `json:"added"`
	Removed []string `json:"removed"`
	Changed []string `json:"changed"`
}

// Empty reports whether nothing changed.
func (d RecordDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Diff compares two records; either may be nil. Changed means the spec is in
// both with a different Hash or success flag. Results are sorted.
func Diff(prev, cur *Record) RecordDiff {
	var d RecordDiff
	prevEntries := entryMap(prev)
	curEntries := entryMap(cur)
	for spec, ce := range curEntries {
		pe, ok := prevEntries[spec]
		switch {
		case !ok:
			d.Added = append(d.Added, spec)
		case pe.Hash != ce.Hash || pe.Success() != ce.Success():
			d.Changed = append(d.Changed, spec)
		}
	}
	for spec := range prevEntries {
		if _, ok := curEntries[spec]; !ok {
			d.Removed = append(d.Removed, spec)
		}
	}
	slices.Sort(d.Added)
	slices.Sort(d.Removed)
	slices.Sort(d.Changed)
	return d
}

func entryMap(r *Record) map[string]*Entry {
	out := make(map[string]*Entry)
	if r == nil {
		return out
	}
	for _, e := range r.Entries {
		out[e.ItemSpec] = e
	}
	return out
}

// RecordHistory pairs the previous and current generation of one record.
// Either side may be nil.
type RecordHistory struct {
	Name     string
	Previous *Record
	Current  *Record
}

// Diff compares the two sides.
func (h *RecordHistory) Diff() RecordDiff {
	return Diff(h.Previous, h.Current)
}

// MultiRecordHistory is a read-only lens over two generations.
type MultiRecordHistory struct {
	Previous *MultiRecord
	Current  *MultiRecord
}

// NewHistory pairs prev and cur. A nil prev is treated as empty.
func NewHistory(prev, cur *MultiRecord) *MultiRecordHistory {
	if prev == nil {
		prev = NewMultiRecord()
	}
	return &MultiRecordHistory{Previous: prev, Current: cur}
}

// RecordNames returns every record name present in either generation, sorted.
func (h *MultiRecordHistory) RecordNames() []string {
	names := make(map[string]struct{})
	for n := range h.Previous.Records {
		names[n] = struct{}{}
	}
	for n := range h.Current.Records {
		names[n] = struct{}{}
	}
	return slices.Sorted(maps.Keys(names))
}

// History returns the pairing for one record name.
func (h *MultiRecordHistory) History(name string) *RecordHistory {
	return &RecordHistory{
		Name:     name,
		Previous: h.Previous.GetRecord(name, false),
		Current:  h.Current.GetRecord(name, false),
	}
}

// Diff compares one record across generations.
func (h *MultiRecordHistory) Diff(name string) RecordDiff {
	return h.History(name).Diff()
}

// PreviousEntry returns the previous generation's entry for spec, or nil.
func (h *MultiRecordHistory) PreviousEntry(name, spec string) *Entry {
	return h.Previous.GetRecord(name, false).GetEntry(spec)
}
