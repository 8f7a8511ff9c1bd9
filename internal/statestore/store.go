// Package statestore is the durable key-value persistence behind the queue.
package statestore

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	KeyQueue   = "processQueue"
	KeyHistory = "processHistory"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Store persists JSON-encodable values under string keys.
type Store interface {
	// Load decodes the value saved under key into v. found is false when
	// nothing was ever saved under key.
	Load(key string, v any) (found bool, err error)
	Save(key string, v any) error
	Close() error
}

// Quarantiner is implemented by stores that can move an unreadable value
// aside, so a fresh Save does not overwrite it. It returns where the value
// now lives.
type Quarantiner interface {
	Quarantine(key string) (string, error)
}

func quarantineSuffix(now time.Time) string {
	return ".corrupt-" + now.UTC().Format("20060102T150405Z")
}

func NormalizeBackend(raw string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", BackendFile, "json":
		return BackendFile, true
	case BackendSQLite, "sqlite3", "db":
		return BackendSQLite, true
	case BackendMemory, "mem":
		return BackendMemory, true
	default:
		return "", false
	}
}

func Open(backend, stateDir string) (Store, error) {
	name, ok := NormalizeBackend(backend)
	if !ok {
		return nil, fmt.Errorf("invalid store backend %q (expected file, sqlite, or memory)", strings.TrimSpace(backend))
	}
	switch name {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendSQLite:
		if err := Mkdir(stateDir); err != nil {
			return nil, err
		}
		return OpenSQLiteStore(filepath.Join(stateDir, "state.db"))
	default:
		return NewFileStore(stateDir)
	}
}
