// Package storage provides atomic file primitives, the store lock, and the
// ephemeral SQLite query cache.
package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrExists is returned by WriteFileExclusive when the target already exists.
var ErrExists = errors.New("file already exists")

// WriteFileAtomic writes data to path so that readers only ever observe the
// old content or the complete new content.
// Uses temp file + rename in the same directory.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(filepath.Dir(path), data, perm)
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// WriteFileExclusive atomically creates path with data, failing with
// ErrExists if path is already present. Existing files are never replaced.
func WriteFileExclusive(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(filepath.Dir(path), data, perm)
	if err != nil {
		return err
	}
	defer os.Remove(tmpPath)

	// A hard link fails if the target exists, giving create-if-absent
	// semantics without ever exposing a partially written file.
	if err := os.Link(tmpPath, path); err != nil {
		if errors.Is(err, os.ErrExist) {
			return ErrExists
		}
		return fmt.Errorf("linking temp file: %w", err)
	}
	return nil
}

// WriteJSONAtomic encodes v as indented JSON and writes it atomically.
func WriteJSONAtomic(path string, v any) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, 0644)
}

// MarshalJSON encodes v the way every JSON file in the store is encoded:
// two-space indentation, trailing newline, no HTML escaping.
func MarshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding JSON: %w", err)
	}
	return buf.Bytes(), nil
}

// writeTemp writes data to a synced temp file in dir and returns its path.
func writeTemp(dir string, data []byte, perm os.FileMode) (string, error) {
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("setting temp file mode: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return "", fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}

	success = true
	return tmpPath, nil
}

// WriteFileSync writes data to path and fsyncs it before returning.
// Meant for files in a staging directory that is renamed into place later.
func WriteFileSync(path string, data []byte, perm os.FileMode) error {
	return writeSync(path, data, perm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY)
}

// CreateFileSync is WriteFileSync but fails with ErrExists if path is
// already present.
func CreateFileSync(path string, data []byte, perm os.FileMode) error {
	err := writeSync(path, data, perm, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
	if errors.Is(err, os.ErrExist) {
		return ErrExists
	}
	return err
}

func writeSync(path string, data []byte, perm os.FileMode, flag int) error {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SyncDir fsyncs a directory so that renames inside it are durable.
// Errors are ignored on platforms that cannot sync directories.
func SyncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	d.Close()
}
