package domain

import "fmt"

// WindowHandle is a native top-level window handle (HWND)
type WindowHandle uintptr

func (h WindowHandle) String() string {
	return fmt.Sprintf("0x%X", uintptr(h))
}

// Point is a screen coordinate. Coordinates can be negative on multi-monitor setups.
type Point struct {
	X int32
	Y int32
}

// Rect is a screen rectangle
type Rect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// Width returns the rectangle width
func (r Rect) Width() int32 {
	return r.Right - r.Left
}

// Height returns the rectangle height
func (r Rect) Height() int32 {
	return r.Bottom - r.Top
}

// Show commands stored in Placement.ShowCmd
const (
	ShowNormal    uint32 = 1
	ShowMinimized uint32 = 2
	ShowMaximized uint32 = 3
)

// Placement is a snapshot of a window's rectangle and show state.
// Field-for-field it mirrors WINDOWPLACEMENT so it restores the window exactly.
type Placement struct {
	Flags          uint32
	ShowCmd        uint32
	MinPosition    Point
	MaxPosition    Point
	NormalPosition Rect
}

// IsMaximized reports whether the snapshot was taken while the window was maximized
func (p Placement) IsMaximized() bool {
	return p.ShowCmd == ShowMaximized
}
