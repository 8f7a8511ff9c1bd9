package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func Mkdir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}

func WriteBytes(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, ".ffq-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o644); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	return nil
}

func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON for %s: %w", path, err)
	}
	data = append(data, '\n')
	return WriteBytes(path, data)
}

func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse JSON %s: %w", path, err)
	}
	return nil
}

// FileStore keeps one JSON document per key inside a directory. Writes go
// through a temp file and a rename, so a crash never leaves a torn document.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	target := strings.TrimSpace(dir)
	if target == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	if err := Mkdir(target); err != nil {
		return nil, err
	}
	return &FileStore{dir: target}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+".json")
}

func (s *FileStore) Load(key string, v any) (bool, error) {
	path := s.path(key)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if err := ReadJSON(path, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *FileStore) Save(key string, v any) error {
	return WriteJSON(s.path(key), v)
}

// Quarantine renames the document for key to <key>.json.corrupt-<ts>.
func (s *FileStore) Quarantine(key string) (string, error) {
	path := s.path(key)
	target := path + quarantineSuffix(time.Now())
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	return target, nil
}

func (s *FileStore) Close() error {
	return nil
}
