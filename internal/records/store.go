package records

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"git.home.luguber.info/inful/bakery/internal/stats"
)

// ErrIncompatibleVersion is reported when a records file was written by
// another format version.
var ErrIncompatibleVersion = errors.New("incompatible records version")

// PathProvider resolves a key to a file path inside a cache region.
type PathProvider interface {
	GetCachePath(key string) string
}

// ComputeRecordsPath derives the records file location from the absolute
// output directory, so distinct targets never share a file.
func ComputeRecordsPath(region PathProvider, outDir, suffix string) (string, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	sum := sha256.Sum256([]byte(abs))
	return region.GetCachePath(hex.EncodeToString(sum[:]) + suffix + ".records"), nil
}

// Load reads a generation from path. It fails soft: the returned MultiRecord
// is always usable. A missing file yields an empty generation and an error
// wrapping fs.ErrNotExist. An unreadable, undecodable or incompatible file
// yields an empty generation marked Invalidated, plus the cause.
func Load(path string) (*MultiRecord, error) {
	// #nosec G304 -- records path is derived from the cache dir
	data, err := os.ReadFile(path)
	if err != nil {
		mr := NewMultiRecord()
		if !errors.Is(err, os.ErrNotExist) {
			mr.Invalidated = true
		}
		return mr, fmt.Errorf("failed to read records: %w", err)
	}

	var header struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(data, &header); err != nil {
		return invalidated(), fmt.Errorf("failed to decode records: %w", err)
	}
	if header.Version != FormatVersion {
		return invalidated(), fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, header.Version, FormatVersion)
	}

	mr := NewMultiRecord()
	if err := json.Unmarshal(data, mr); err != nil {
		return invalidated(), fmt.Errorf("failed to decode records: %w", err)
	}
	if mr.Records == nil {
		mr.Records = make(map[string]*Record)
	}
	if mr.Stats == nil {
		mr.Stats = stats.New()
	}
	for name, r := range mr.Records {
		if r == nil {
			delete(mr.Records, name)
			continue
		}
		if slices.Contains(r.Entries, nil) {
			return invalidated(), fmt.Errorf("failed to decode records: record %q holds an empty entry", name)
		}
		r.reindex()
	}
	return mr, nil
}

func invalidated() *MultiRecord {
	mr := NewMultiRecord()
	mr.Invalidated = true
	return mr
}

// Save writes m to path as JSON, creating parent directories. The write is
// not atomic; callers rotate backups first.
func (m *MultiRecord) Save(path string) error {
	m.Version = FormatVersion
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create records dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write records: %w", err)
	}
	return nil
}
