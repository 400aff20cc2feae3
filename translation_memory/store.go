package translation_memory

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/morler/repo-translate/translation_memory/contracts"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"

	sqliteFile = "memory.db"
)

// NewStore opens the configured backend under dir. It returns a nil store
// for BackendNone.
func NewStore(backend, dir, scope string) (contracts.IStore, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return NewFileStore(filepath.Join(dir, "entries"), scope)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, sqliteFile), scope)
	case BackendNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown translation memory backend %q (want %s, %s or %s)", backend, BackendFile, BackendSQLite, BackendNone)
	}
}

// Scope identifies the producer of a translation so that switching model
// does not serve stale entries.
func Scope(provider, model string) string {
	return strings.ToLower(provider) + "/" + model
}
