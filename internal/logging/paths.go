package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir is ~/.synthesis/logs, or a temp-dir equivalent when no
// home directory is available.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".synthesis", "logs")
	}
	return filepath.Join(home, ".synthesis", "logs")
}

// DefaultLogPath is the server's log file inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}

// FindLogFile resolves which log file to view. An explicit path wins;
// otherwise the default server log is used. Errors when the resolved
// file does not exist.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found, the server may not have run yet (expected at %s)", path)
	}
	return path, nil
}
