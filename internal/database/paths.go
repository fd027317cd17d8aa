package database

import (
	"fmt"
	"os"
	"path/filepath"
)

// Default on-disk layout under the user's home directory
const (
	AppDirName        = ".ride-dispatcher"
	DistanceCacheFile = "cache/distances.json"
	SQLiteDBFileName  = "data.db"
)

// GetAppDir returns ~/.ride-dispatcher, creating it if needed
func GetAppDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	dir := filepath.Join(home, AppDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return dir, nil
}

func appPath(rel string) (string, error) {
	dir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.FromSlash(rel)), nil
}

// GetDistanceCachePath is the default CACHE_FILE
func GetDistanceCachePath() (string, error) { return appPath(DistanceCacheFile) }

// GetDefaultDBPath is the default SQLITE_PATH
func GetDefaultDBPath() (string, error) { return appPath(SQLiteDBFileName) }
