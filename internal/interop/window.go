package interop

import "github.com/awsl-project/maxdesk/internal/domain"

// WindowSystem is the set of top-level window operations the relocation flow needs
type WindowSystem interface {
	// IsWindow reports whether the handle still names a live window
	IsWindow(hwnd domain.WindowHandle) bool
	Placement(hwnd domain.WindowHandle) (domain.Placement, error)
	SetPlacement(hwnd domain.WindowHandle, p domain.Placement) error
	Maximize(hwnd domain.WindowHandle) error
	Focus(hwnd domain.WindowHandle) error
	// Label returns the window title, or the owning process name when the title is empty
	Label(hwnd domain.WindowHandle) (string, error)
	// IsElevatedAboveSelf reports whether the owning process runs elevated while
	// this process does not. Window messages across that boundary are blocked.
	IsElevatedAboveSelf(hwnd domain.WindowHandle) bool
}
