package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// MaxBackups bounds the number of .bak files kept next to a config file.
const MaxBackups = 3

// BackupFile copies path to path.bak.<timestamp> and prunes older backups.
// A missing path returns "" and no error.
func BackupFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read config for backup: %w", err)
	}

	backup := fmt.Sprintf("%s.bak.%s", path, time.Now().Format("20060102-150405.000"))
	if err := os.WriteFile(backup, data, 0o644); err != nil {
		return "", fmt.Errorf("write backup: %w", err)
	}
	_ = pruneBackups(path)
	return backup, nil
}

func pruneBackups(path string) error {
	matches, err := filepath.Glob(path + ".bak.*")
	if err != nil || len(matches) <= MaxBackups {
		return err
	}
	// Timestamp suffixes sort chronologically.
	sort.Strings(matches)
	for _, m := range matches[:len(matches)-MaxBackups] {
		if err := os.Remove(m); err != nil {
			return err
		}
	}
	return nil
}
