package records

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MaxBackups is the number of rotated generations kept next to the primary file.
const MaxBackups = 9

// BackupPath returns the path of backup n (1..MaxBackups). n == 0 is the primary.
// "<id>.records" becomes "<id>.<n>.records".
func BackupPath(path string, n int) string {
	if n == 0 {
		return path
	}
	base, ext := splitExt(path)
	return base + "." + strconv.Itoa(n) + ext
}

func splitExt(path string) (string, string) {
	if strings.HasSuffix(path, ".records") {
		return strings.TrimSuffix(path, ".records"), ".records"
	}
	return path, ""
}

// RotateBackups shifts existing generations up by one index before a new
// save: backup 9 is dropped, 8 becomes 9, and so on, and the primary becomes
// backup 1. Missing generations are skipped.
func RotateBackups(path string) error {
	oldest := BackupPath(path, MaxBackups)
	if err := os.Remove(oldest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to drop oldest backup: %w", err)
	}
	for n := MaxBackups - 1; n >= 0; n-- {
		from := BackupPath(path, n)
		if _, err := os.Stat(from); err != nil {
			continue
		}
		if err := os.Rename(from, BackupPath(path, n+1)); err != nil {
			return fmt.Errorf("failed to rotate backup %d: %w", n, err)
		}
	}
	return nil
}

// ListBackups returns the indexes of existing backups, newest first.
func ListBackups(path string) []int {
	var out []int
	for n := 1; n <= MaxBackups; n++ {
		if _, err := os.Stat(BackupPath(path, n)); err == nil {
			out = append(out, n)
		}
	}
	return out
}
