package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.ragdoc/logs, or a temp dir when $HOME is unset.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragdoc", "logs")
	}
	return filepath.Join(home, ".ragdoc", "logs")
}

func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "ragdoc.log")
}
