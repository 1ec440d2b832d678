package recovery

import (
	"log"

	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/google/uuid"
)

// Desktops is the part of the desktop service reconciliation needs
type Desktops interface {
	FindDesktop(id uuid.UUID) *vdesktop.Handle
	RemoveDesktop(h, fallback *vdesktop.Handle) bool
}

// Reconcile removes temporary desktops left behind by an earlier run.
// Every persisted desktop not held by a live relocation is an orphan; if it
// still exists it is removed. Failures are logged and skipped. Afterwards the
// store holds only the live entries, which deletes it when there are none.
// It returns the number of desktops removed.
func Reconcile(store Store, desktops Desktops, isLive func(uuid.UUID) bool) int {
	entries, err := store.Load()
	if err != nil {
		log.Printf("[Recovery] Warning: load failed, discarding stored state: %v", err)
	}
	if len(entries) == 0 {
		if err != nil {
			deleteStore(store)
		}
		return 0
	}

	removed := 0
	var live []Entry
	for _, e := range entries {
		if isLive != nil && isLive(e.TempDesktopID) {
			live = append(live, e)
			continue
		}
		h := desktops.FindDesktop(e.TempDesktopID)
		if h == nil {
			log.Printf("[Recovery] Orphaned desktop %s already gone", e.TempDesktopID)
			continue
		}
		if desktops.RemoveDesktop(h, nil) {
			removed++
			log.Printf("[Recovery] Removed orphaned desktop %s (%s)", e.TempDesktopID, label(e.ProcessName))
		} else {
			log.Printf("[Recovery] Warning: could not remove orphaned desktop %s", e.TempDesktopID)
		}
		h.Release()
	}

	if err := store.Save(live); err != nil {
		log.Printf("[Recovery] Warning: save failed: %v", err)
	}
	return removed
}

func deleteStore(store Store) {
	if err := store.Delete(); err != nil {
		log.Printf("[Recovery] Warning: delete failed: %v", err)
	}
}

func label(name *string) string {
	if name == nil || *name == "" {
		return "unknown"
	}
	return *name
}
