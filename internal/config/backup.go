package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxBackups bounds how many config backups stay on disk.
const maxBackups = 3

const backupSuffix = ".bak"

// BackupUserConfig copies the user config to a timestamped sibling
// before a destructive write. Returns the backup path, or "" when
// there is nothing to back up.
func BackupUserConfig() (string, error) {
	path := GetUserConfigPath()
	if !UserConfigExists() {
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read config for backup: %w", err)
	}

	backupPath := path + backupSuffix + "." + time.Now().Format("20060102-150405")
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write config backup: %w", err)
	}

	pruneBackups()
	return backupPath, nil
}

// ListUserConfigBackups returns the user config's backups, newest
// first.
func ListUserConfigBackups() ([]string, error) {
	path := GetUserConfigPath()
	dir := filepath.Dir(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list config directory: %w", err)
	}

	prefix := filepath.Base(path) + backupSuffix + "."
	var backups []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), prefix) {
			backups = append(backups, filepath.Join(dir, e.Name()))
		}
	}

	// The timestamp suffix sorts lexically, newest last.
	sort.Sort(sort.Reverse(sort.StringSlice(backups)))
	return backups, nil
}

// pruneBackups drops everything beyond maxBackups. Best effort.
func pruneBackups() {
	backups, err := ListUserConfigBackups()
	if err != nil || len(backups) <= maxBackups {
		return
	}
	for _, b := range backups[maxBackups:] {
		_ = os.Remove(b)
	}
}
