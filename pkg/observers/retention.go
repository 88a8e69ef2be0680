package observers

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// artifactSuffixes are the file kinds this package writes. PurgeArtifacts
// leaves anything else in the directory alone.
var artifactSuffixes = []string{".jsonl", ".cost.json"}

// PurgeArtifacts deletes turn artifacts older than maxAge and reports
// how many were removed. A missing directory is not an error.
func PurgeArtifacts(dir string, maxAge time.Duration) (int, error) {
	if strings.TrimSpace(dir) == "" || maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	var failures error
	for _, entry := range entries {
		if entry.IsDir() || !isArtifact(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			failures = errors.Join(failures, err)
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			failures = errors.Join(failures, err)
			continue
		}
		removed++
	}
	return removed, failures
}

func isArtifact(name string) bool {
	for _, suffix := range artifactSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
