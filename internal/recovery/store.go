// Package recovery persists the set of temporary desktops created by this
// process so that a later run can remove the ones a crash left behind.
package recovery

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

// Entry is the durable projection of one active relocation
type Entry struct {
	TempDesktopID uuid.UUID `json:"TempDesktopId"`
	ProcessName   *string   `json:"ProcessName"`
	CreatedAt     time.Time `json:"CreatedAt"`
}

// Store persists entries. Absence of stored data means no active relocations.
type Store interface {
	// Save replaces the stored set. An empty set deletes the storage.
	Save(entries []Entry) error
	// Load returns the stored set, empty when nothing is stored
	Load() ([]Entry, error)
	Delete() error
}

// Backend names
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open creates the store for backend under dir
func Open(backend, dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir), nil
	case BackendSQLite:
		return NewSQLiteStore(dir), nil
	default:
		return nil, fmt.Errorf("unsupported recovery store %q (supported: file, sqlite)", backend)
	}
}
