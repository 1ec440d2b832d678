// Package relocate moves windows onto temporary virtual desktops and back.
package relocate

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/awsl-project/maxdesk/internal/tracker"
	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// DefaultSettleDelay lets the desktop switch animation finish before maximizing
const DefaultSettleDelay = 250 * time.Millisecond

// ElevatedTitle is the notice title shown when maximize had to be skipped
const ElevatedTitle = "Elevated Window"

const elevatedMessage = "Window was moved to a new desktop but could not be maximized " +
	"(it's running as Administrator). Press Win+Up to maximize it."

// Desktops is the desktop service as the orchestrator uses it
type Desktops interface {
	Ready() bool
	GetDesktopIDForWindow(hwnd domain.WindowHandle) (uuid.UUID, bool)
	FindDesktop(id uuid.UUID) *vdesktop.Handle
	CreateDesktop() (*vdesktop.Handle, uuid.UUID, bool)
	SetDesktopName(h *vdesktop.Handle, name string) bool
	MoveWindowToDesktop(hwnd domain.WindowHandle, h *vdesktop.Handle) bool
	SwitchToDesktop(h *vdesktop.Handle) bool
	RemoveDesktop(h, fallback *vdesktop.Handle) bool
}

// Notifier shows a short message to the user
type Notifier func(title, subtitle string)

// Options tunes an Orchestrator
type Options struct {
	SettleDelay time.Duration
	Clock       clockwork.Clock
	Notify      Notifier
}

// Orchestrator drives relocate and restore. All methods must be called on
// the thread that owns the desktop service.
type Orchestrator struct {
	desktops Desktops
	tracker  *tracker.Tracker
	windows  interop.WindowSystem
	clock    clockwork.Clock
	settle   time.Duration

	mu       sync.Mutex
	inFlight map[domain.WindowHandle]struct{}
	notify   Notifier
}

// New creates an orchestrator
func New(desktops Desktops, t *tracker.Tracker, windows interop.WindowSystem, opts Options) *Orchestrator {
	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Orchestrator{
		desktops: desktops,
		tracker:  t,
		windows:  windows,
		clock:    clock,
		settle:   opts.SettleDelay,
		inFlight: make(map[domain.WindowHandle]struct{}),
		notify:   opts.Notify,
	}
}

// SetNotifier replaces the notice hook
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	o.notify = n
	o.mu.Unlock()
}

// Count returns the number of relocated windows
func (o *Orchestrator) Count() int {
	return o.tracker.Count()
}

// begin marks hwnd as in flight. It returns false when a transition for hwnd
// is already running.
func (o *Orchestrator) begin(hwnd domain.WindowHandle) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[hwnd]; busy {
		return false
	}
	o.inFlight[hwnd] = struct{}{}
	return true
}

func (o *Orchestrator) end(hwnd domain.WindowHandle) {
	o.mu.Lock()
	delete(o.inFlight, hwnd)
	o.mu.Unlock()
}

// Toggle restores hwnd when it is relocated and relocates it otherwise.
// A call for a window whose transition is still running does nothing.
func (o *Orchestrator) Toggle(hwnd domain.WindowHandle) error {
	if !o.windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s: %w", hwnd, domain.ErrPrecondition)
	}
	if !o.begin(hwnd) {
		log.Printf("[Relocate] %s already in flight, ignoring", hwnd)
		return nil
	}
	defer o.end(hwnd)

	if o.tracker.IsTracked(hwnd) {
		return o.restore(hwnd)
	}
	return o.maximize(hwnd)
}

// MaximizeToDesktop moves hwnd onto a new desktop and maximizes it there.
// An already relocated window is restored instead.
func (o *Orchestrator) MaximizeToDesktop(hwnd domain.WindowHandle) error {
	if !o.begin(hwnd) {
		return nil
	}
	defer o.end(hwnd)
	return o.maximize(hwnd)
}

// Restore moves a relocated window back where it came from. Untracked windows
// are ignored.
func (o *Orchestrator) Restore(hwnd domain.WindowHandle) error {
	if !o.begin(hwnd) {
		return nil
	}
	defer o.end(hwnd)
	return o.restore(hwnd)
}

func (o *Orchestrator) maximize(hwnd domain.WindowHandle) error {
	if !o.desktops.Ready() {
		return domain.ErrNotReady
	}
	if !o.windows.IsWindow(hwnd) {
		return fmt.Errorf("window %s vanished: %w", hwnd, domain.ErrPrecondition)
	}
	if o.tracker.IsTracked(hwnd) {
		log.Printf("[Relocate] %s already relocated, restoring", hwnd)
		return o.restore(hwnd)
	}

	originalID, ok := o.desktops.GetDesktopIDForWindow(hwnd)
	if !ok {
		return fmt.Errorf("desktop of %s unknown: %w", hwnd, domain.ErrPrecondition)
	}
	placement, err := o.windows.Placement(hwnd)
	if err != nil {
		return fmt.Errorf("placement of %s: %v: %w", hwnd, err, domain.ErrPrecondition)
	}

	var (
		temp   *vdesktop.Handle
		tempID uuid.UUID
		label  string
	)
	steps := []step{
		{
			name: "create desktop",
			run: func() error {
				h, id, ok := o.desktops.CreateDesktop()
				if !ok {
					return errors.New("desktop not created")
				}
				if id == originalID {
					// the handle names the user's own desktop, which must survive
					h.Release()
					return fmt.Errorf("new desktop reuses original id %s", id)
				}
				temp, tempID = h, id
				return nil
			},
			compensate: func() {
				o.discard(temp, tempID)
			},
		},
		{
			name: "name desktop",
			run: func() error {
				label = o.label(hwnd)
				if label != "" && !o.desktops.SetDesktopName(temp, domain.TempDesktopPrefix+label) {
					log.Printf("[Relocate] Warning: could not name desktop %s", tempID)
				}
				return nil
			},
		},
		{
			name: "move window",
			run: func() error {
				if !o.desktops.MoveWindowToDesktop(hwnd, temp) {
					return errors.New("window not moved")
				}
				return nil
			},
			compensate: func() {
				o.moveBack(hwnd, originalID)
			},
		},
		{
			name: "switch desktop",
			run: func() error {
				if !o.desktops.SwitchToDesktop(temp) {
					return errors.New("desktop not shown")
				}
				return nil
			},
		},
	}
	if err := runSaga(steps); err != nil {
		return fmt.Errorf("relocate %s: %w: %w", hwnd, domain.ErrRelocationFailed, err)
	}

	if o.windows.IsElevatedAboveSelf(hwnd) {
		log.Printf("[Relocate] %s is elevated, skipping maximize", hwnd)
		o.notice(ElevatedTitle, elevatedMessage)
	} else {
		if o.settle > 0 {
			o.clock.Sleep(o.settle)
		}
		if err := o.windows.Maximize(hwnd); err != nil {
			log.Printf("[Relocate] Warning: maximize %s: %v", hwnd, err)
		}
	}
	if err := o.windows.Focus(hwnd); err != nil {
		log.Printf("[Relocate] Warning: focus %s: %v", hwnd, err)
	}

	if _, err := o.tracker.Track(hwnd, originalID, tempID, temp, label, placement); err != nil {
		o.unwind(hwnd, originalID, placement, temp, tempID)
		return fmt.Errorf("relocate %s: %w: %w", hwnd, domain.ErrRelocationFailed, err)
	}
	log.Printf("[Relocate] Moved %s to desktop %s", hwnd, tempID)
	return nil
}

// unwind undoes a relocation that completed but could not be recorded:
// the window goes back to its original desktop and placement, and the
// temporary desktop is removed and released.
func (o *Orchestrator) unwind(hwnd domain.WindowHandle, originalID uuid.UUID, placement domain.Placement, temp *vdesktop.Handle, tempID uuid.UUID) {
	log.Printf("[Relocate] Undoing relocation of %s", hwnd)
	if err := o.windows.SetPlacement(hwnd, placement); err != nil {
		log.Printf("[Relocate] Warning: placement of %s not restored: %v", hwnd, err)
	}
	if orig := o.desktops.FindDesktop(originalID); orig != nil {
		o.desktops.MoveWindowToDesktop(hwnd, orig)
		o.desktops.SwitchToDesktop(orig)
		orig.Release()
	}
	o.discard(temp, tempID)
}

// discard removes the temporary desktop and releases its handle
func (o *Orchestrator) discard(temp *vdesktop.Handle, tempID uuid.UUID) {
	o.removeTemp(temp, tempID)
	temp.Release()
}

// removeTemp removes a temporary desktop. A handle cut from an adapter that
// has since been rebuilt no longer works, so on failure the desktop is looked
// up again by id and removed through the fresh handle.
func (o *Orchestrator) removeTemp(temp *vdesktop.Handle, tempID uuid.UUID) bool {
	if o.desktops.RemoveDesktop(temp, nil) {
		return true
	}
	fresh := o.desktops.FindDesktop(tempID)
	if fresh == nil {
		log.Printf("[Relocate] Warning: temporary desktop %s not removed", tempID)
		return false
	}
	defer fresh.Release()
	if !o.desktops.RemoveDesktop(fresh, nil) {
		log.Printf("[Relocate] Warning: temporary desktop %s not removed", tempID)
		return false
	}
	log.Printf("[Relocate] Removed temporary desktop %s through a fresh handle", tempID)
	return true
}

// moveBack returns hwnd to the original desktop if that desktop still exists
func (o *Orchestrator) moveBack(hwnd domain.WindowHandle, originalID uuid.UUID) {
	orig := o.desktops.FindDesktop(originalID)
	if orig == nil {
		log.Printf("[Relocate] Warning: original desktop %s gone, cannot move %s back", originalID, hwnd)
		return
	}
	defer orig.Release()
	if !o.desktops.MoveWindowToDesktop(hwnd, orig) {
		log.Printf("[Relocate] Warning: could not move %s back to %s", hwnd, originalID)
	}
}

func (o *Orchestrator) label(hwnd domain.WindowHandle) string {
	label, err := o.windows.Label(hwnd)
	if err != nil {
		log.Printf("[Relocate] No label for %s: %v", hwnd, err)
		return ""
	}
	return label
}

func (o *Orchestrator) notice(title, subtitle string) {
	o.mu.Lock()
	notify := o.notify
	o.mu.Unlock()
	if notify != nil {
		notify(title, subtitle)
	}
}

func (o *Orchestrator) restore(hwnd domain.WindowHandle) error {
	if !o.desktops.Ready() {
		return domain.ErrNotReady
	}
	// Untrack first so a destroy notification arriving mid-restore is a no-op
	entry := o.tracker.Untrack(hwnd)
	if entry == nil {
		return nil
	}
	defer entry.TempDesktop.Release()

	alive := o.windows.IsWindow(hwnd)
	if alive {
		if err := o.windows.SetPlacement(hwnd, entry.OriginalPlacement); err != nil {
			log.Printf("[Relocate] Warning: placement of %s not restored: %v", hwnd, err)
		}
	}

	if orig := o.desktops.FindDesktop(entry.OriginalDesktopID); orig != nil {
		if alive {
			o.desktops.MoveWindowToDesktop(hwnd, orig)
		}
		o.desktops.SwitchToDesktop(orig)
		orig.Release()
	} else {
		log.Printf("[Relocate] Original desktop %s gone, leaving %s on current desktop", entry.OriginalDesktopID, hwnd)
	}

	o.removeTemp(entry.TempDesktop, entry.TempDesktopID)

	if alive {
		if err := o.windows.Focus(hwnd); err != nil {
			log.Printf("[Relocate] Warning: focus %s: %v", hwnd, err)
		}
	}
	log.Printf("[Relocate] Restored %s", hwnd)
	return nil
}

// HandleWindowDestroyed cleans up after a relocated window was closed
func (o *Orchestrator) HandleWindowDestroyed(hwnd domain.WindowHandle) {
	if !o.tracker.IsTracked(hwnd) {
		return
	}
	if !o.desktops.Ready() {
		// the sweep retries once the service is back
		return
	}
	entry := o.tracker.Untrack(hwnd)
	if entry == nil {
		return
	}
	defer entry.TempDesktop.Release()
	log.Printf("[Relocate] Relocated window %s destroyed, cleaning up", hwnd)

	if orig := o.desktops.FindDesktop(entry.OriginalDesktopID); orig != nil {
		o.desktops.SwitchToDesktop(orig)
		orig.Release()
	}
	o.removeTemp(entry.TempDesktop, entry.TempDesktopID)
}

// RestoreAll restores every relocated window. A failure on one window does
// not stop the others; all failures are returned joined.
func (o *Orchestrator) RestoreAll() error {
	entries := o.tracker.GetAll()
	if len(entries) == 0 {
		return nil
	}
	log.Printf("[Relocate] Restoring %d window(s)", len(entries))

	var errs []error
	for _, e := range entries {
		if err := o.restoreIsolated(e.Window); err != nil {
			log.Printf("[Relocate] Error restoring %s: %v", e.Window, err)
			errs = append(errs, fmt.Errorf("restore %s: %w", e.Window, err))
		}
	}
	return errors.Join(errs...)
}

func (o *Orchestrator) restoreIsolated(hwnd domain.WindowHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.Restore(hwnd)
}

// CleanupStaleEntries treats every relocated window that no longer exists as
// destroyed. It returns the number of entries cleaned up.
func (o *Orchestrator) CleanupStaleEntries() int {
	if !o.desktops.Ready() {
		return 0
	}
	stale := o.tracker.GetStaleHandles()
	for _, hwnd := range stale {
		o.HandleWindowDestroyed(hwnd)
	}
	if len(stale) > 0 {
		log.Printf("[Relocate] Cleaned up %d stale entries", len(stale))
	}
	return len(stale)
}
