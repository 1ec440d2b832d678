package interop

import (
	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/google/uuid"
)

// Layout identifies one of the incompatible method-table layouts of the
// internal virtual desktop manager interface.
type Layout int

const (
	// LayoutPre24H2 covers builds 22000 through 26099
	LayoutPre24H2 Layout = iota
	// Layout24H2 covers build 26100 and later
	Layout24H2
)

// Build24H2 is the first build that ships the 24H2 layout
const Build24H2 = 26100

func (l Layout) String() string {
	switch l {
	case LayoutPre24H2:
		return "pre-24H2"
	case Layout24H2:
		return "24H2"
	default:
		return "unknown"
	}
}

// PrimaryLayout returns the layout expected for the given OS build
func PrimaryLayout(build int) Layout {
	if build >= Build24H2 {
		return Layout24H2
	}
	return LayoutPre24H2
}

// Other returns the alternative layout tried when the primary one fails
func (l Layout) Other() Layout {
	if l == Layout24H2 {
		return LayoutPre24H2
	}
	return Layout24H2
}

// DesktopRef is a counted native reference to a virtual desktop.
// Whoever receives one owns it and must call Release exactly once.
type DesktopRef interface {
	ID() (uuid.UUID, error)
	Name() (string, error)
	Release()
}

// Binding is the uniform operation set exposed by every layout.
// Every DesktopRef it returns is owned by the caller.
type Binding interface {
	Layout() Layout
	Count() (int, error)
	CurrentDesktop() (DesktopRef, error)
	CreateDesktop() (DesktopRef, error)
	Desktops() ([]DesktopRef, error)
	MoveWindowToDesktop(hwnd domain.WindowHandle, desktop DesktopRef) error
	AdjacentDesktop(from DesktopRef, dir domain.Direction) (DesktopRef, error)
	SwitchWithAnimation(desktop DesktopRef) error
	RemoveDesktop(desktop, fallback DesktopRef) error
	// FindDesktop returns an error or a nil ref when no desktop has the id
	FindDesktop(id uuid.UUID) (DesktopRef, error)
	SetDesktopName(desktop DesktopRef, name string) error
	// Release drops the binding's native interface reference
	Release()
}

// Shell is the native desktop-management service a Binding is cut from
type Shell interface {
	// Bind casts the underlying service to the given layout
	Bind(layout Layout) (Binding, error)
	// WindowDesktopID returns the desktop a top-level window is assigned to
	WindowDesktopID(hwnd domain.WindowHandle) (uuid.UUID, error)
	Close() error
}

// ShellFactory opens a fresh Shell. It must be called on the designated thread.
type ShellFactory func() (Shell, error)
