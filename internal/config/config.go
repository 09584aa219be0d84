// Package config handles store layout and global configuration.
package config

import (
	"os"
	"path/filepath"
)

// Store layout, relative to the store root.
const (
	PapersDir      = "papers"
	IndexDir       = "index"
	IndexFile      = "papers.json"
	HistoryFile    = "imports.jsonl"
	MetadataFile   = "metadata.json"
	SummaryFile    = "summary.md"
	AnnotationsDir = "annotations"
	LockFile       = ".shelf.lock"
	CacheDir       = "cache"
	DBFile         = "papers.db"
	DefaultDataDir = "data"
	EnvDataDir     = "SHELF_DATA_DIR"
	EnvUsername    = "SHELF_USERNAME"
	EnvLogLevel    = "SHELF_LOG_LEVEL"
)

// PapersPath returns the directory holding one sub-directory per paper.
func PapersPath(root string) string {
	return filepath.Join(root, PapersDir)
}

// PaperPath returns the directory for a single paper.
// Callers must validate id before building a path from it.
func PaperPath(root, id string) string {
	return filepath.Join(root, PapersDir, id)
}

// MetadataPath returns the path to a paper's metadata.json.
func MetadataPath(root, id string) string {
	return filepath.Join(root, PapersDir, id, MetadataFile)
}

// SummaryPath returns the path to a paper's summary.md.
func SummaryPath(root, id string) string {
	return filepath.Join(root, PapersDir, id, SummaryFile)
}

// AnnotationsPath returns the directory holding a paper's annotations.
func AnnotationsPath(root, id string) string {
	return filepath.Join(root, PapersDir, id, AnnotationsDir)
}

// IndexPath returns the path to the index file.
func IndexPath(root string) string {
	return filepath.Join(root, IndexDir, IndexFile)
}

// HistoryPath returns the path to the append-only import history.
func HistoryPath(root string) string {
	return filepath.Join(root, IndexDir, HistoryFile)
}

// LockPath returns the path to the advisory lock file.
func LockPath(root string) string {
	return filepath.Join(root, LockFile)
}

// CachePath returns the path to the cache directory.
func CachePath(root string) string {
	return filepath.Join(root, CacheDir)
}

// DBPath returns the path to the SQLite query cache.
func DBPath(root string) string {
	return filepath.Join(root, CacheDir, DBFile)
}

// ResolveDataDir picks the store root: an explicit flag wins, then the
// SHELF_DATA_DIR environment variable, then the global config, then ./data.
func ResolveDataDir(flagValue string) string {
	if flagValue != "" {
		return ExpandPath(flagValue)
	}
	if env := os.Getenv(EnvDataDir); env != "" {
		return ExpandPath(env)
	}
	if dir := GetDataDir(); dir != "" {
		return dir
	}
	return DefaultDataDir
}

// ResolveUsername picks the username used for new annotations and manifests.
func ResolveUsername(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(EnvUsername); env != "" {
		return env
	}
	if name := GetUsername(); name != "" {
		return name
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	return "anonymous"
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
