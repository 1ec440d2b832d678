// Package tracker keeps the registry of windows currently relocated onto a
// temporary desktop and mirrors it to the recovery store.
package tracker

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/recovery"
	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Entry is one active relocation. TempDesktop is owned by the entry until
// the entry leaves the tracker.
type Entry struct {
	Window            domain.WindowHandle
	OriginalDesktopID uuid.UUID
	TempDesktopID     uuid.UUID
	TempDesktop       *vdesktop.Handle
	ProcessLabel      string
	OriginalPlacement domain.Placement
	CreatedAt         time.Time
}

// Tracker is the in-memory registry keyed by window handle
type Tracker struct {
	mu       sync.Mutex
	entries  map[domain.WindowHandle]*Entry
	store    recovery.Store
	isWindow func(domain.WindowHandle) bool
	clock    clockwork.Clock
	onChange func(count int)
}

// New creates a tracker. isWindow reports whether a window still exists.
func New(store recovery.Store, isWindow func(domain.WindowHandle) bool, clock clockwork.Clock) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Tracker{
		entries:  make(map[domain.WindowHandle]*Entry),
		store:    store,
		isWindow: isWindow,
		clock:    clock,
	}
}

// OnChange registers a hook called with the new count after every mutation
func (t *Tracker) OnChange(fn func(count int)) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// IsTracked reports whether hwnd has an entry
func (t *Tracker) IsTracked(hwnd domain.WindowHandle) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[hwnd]
	return ok
}

// Track records a relocation. An existing entry for hwnd is replaced and its
// temporary desktop handle released.
func (t *Tracker) Track(hwnd domain.WindowHandle, originalID, tempID uuid.UUID, temp *vdesktop.Handle, label string, placement domain.Placement) (*Entry, error) {
	if tempID == originalID {
		return nil, fmt.Errorf("temporary desktop %s is the original desktop: %w", tempID, domain.ErrPrecondition)
	}
	if temp == nil {
		return nil, fmt.Errorf("no temporary desktop handle: %w", domain.ErrPrecondition)
	}

	entry := &Entry{
		Window:            hwnd,
		OriginalDesktopID: originalID,
		TempDesktopID:     tempID,
		TempDesktop:       temp,
		ProcessLabel:      label,
		OriginalPlacement: placement,
		CreatedAt:         t.clock.Now(),
	}

	t.mu.Lock()
	displaced := t.entries[hwnd]
	t.entries[hwnd] = entry
	count := t.persistLocked()
	hook := t.onChange
	t.mu.Unlock()

	if displaced != nil && displaced.TempDesktop != temp {
		log.Printf("[Tracker] Replaced entry for %s, releasing desktop %s", hwnd, displaced.TempDesktopID)
		displaced.TempDesktop.Release()
	}
	log.Printf("[Tracker] Tracking %s on %s (%d active)", hwnd, tempID, count)
	if hook != nil {
		hook(count)
	}
	return entry, nil
}

// Get returns the entry for hwnd, or nil
func (t *Tracker) Get(hwnd domain.WindowHandle) *Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[hwnd]
}

// Untrack removes and returns the entry for hwnd. The caller takes ownership
// of its TempDesktop. Returns nil when hwnd is not tracked.
func (t *Tracker) Untrack(hwnd domain.WindowHandle) *Entry {
	t.mu.Lock()
	entry, ok := t.entries[hwnd]
	if !ok {
		t.mu.Unlock()
		return nil
	}
	delete(t.entries, hwnd)
	count := t.persistLocked()
	hook := t.onChange
	t.mu.Unlock()

	log.Printf("[Tracker] Untracked %s (%d active)", hwnd, count)
	if hook != nil {
		hook(count)
	}
	return entry
}

// GetAll returns a snapshot of all entries, oldest first
func (t *Tracker) GetAll() []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sortedLocked()
}

// GetStaleHandles returns tracked handles whose window no longer exists
func (t *Tracker) GetStaleHandles() []domain.WindowHandle {
	var stale []domain.WindowHandle
	for _, e := range t.GetAll() {
		if t.isWindow != nil && !t.isWindow(e.Window) {
			stale = append(stale, e.Window)
		}
	}
	return stale
}

// HoldsDesktop reports whether a tracked entry owns the desktop id
func (t *Tracker) HoldsDesktop(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.entries {
		if e.TempDesktopID == id {
			return true
		}
	}
	return false
}

// Handles returns the tracked window handles
func (t *Tracker) Handles() []domain.WindowHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	handles := make([]domain.WindowHandle, 0, len(t.entries))
	for hwnd := range t.entries {
		handles = append(handles, hwnd)
	}
	return handles
}

// Count returns the number of tracked windows
func (t *Tracker) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *Tracker) sortedLocked() []*Entry {
	all := make([]*Entry, 0, len(t.entries))
	for _, e := range t.entries {
		all = append(all, e)
	}
	sort.SliceStable(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Window < all[j].Window
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// persistLocked writes the projection of the current set. Must be called
// with t.mu held. A save failure is logged, never returned.
func (t *Tracker) persistLocked() int {
	if t.store == nil {
		return len(t.entries)
	}
	all := t.sortedLocked()
	projection := make([]recovery.Entry, len(all))
	for i, e := range all {
		var name *string
		if e.ProcessLabel != "" {
			label := e.ProcessLabel
			name = &label
		}
		projection[i] = recovery.Entry{
			TempDesktopID: e.TempDesktopID,
			ProcessName:   name,
			CreatedAt:     e.CreatedAt,
		}
	}
	if err := t.store.Save(projection); err != nil {
		log.Printf("[Tracker] Warning: failed to persist %d entries: %v", len(projection), err)
	}
	return len(all)
}
