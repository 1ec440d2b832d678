//go:build windows

package interop

import (
	"fmt"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/awsl-project/maxdesk/internal/domain"
	"golang.org/x/sys/windows"
)

var (
	moduser32                = windows.NewLazySystemDLL("user32.dll")
	procIsWindow             = moduser32.NewProc("IsWindow")
	procGetWindowPlacement   = moduser32.NewProc("GetWindowPlacement")
	procSetWindowPlacement   = moduser32.NewProc("SetWindowPlacement")
	procShowWindow           = moduser32.NewProc("ShowWindow")
	procSetForegroundWindow  = moduser32.NewProc("SetForegroundWindow")
	procGetWindowTextLengthW = moduser32.NewProc("GetWindowTextLengthW")
	procGetWindowTextW       = moduser32.NewProc("GetWindowTextW")
	procGetForegroundWindow  = moduser32.NewProc("GetForegroundWindow")
	procGetAncestor          = moduser32.NewProc("GetAncestor")
	procWindowFromPoint      = moduser32.NewProc("WindowFromPoint")
	procSendMessageTimeoutW  = moduser32.NewProc("SendMessageTimeoutW")
	procGetAsyncKeyState     = moduser32.NewProc("GetAsyncKeyState")
)

const (
	swMaximize = 3

	gaRoot = 2

	wmNCHitTest     = 0x0084
	smtoAbortIfHung = 0x0002
	htMaxButton     = 9

	vkShift = 0x10
)

// windowPlacement is the native WINDOWPLACEMENT layout
type windowPlacement struct {
	length           uint32
	flags            uint32
	showCmd          uint32
	ptMinPosition    domain.Point
	ptMaxPosition    domain.Point
	rcNormalPosition domain.Rect
}

// Win32 implements WindowSystem on top of user32
type Win32 struct{}

// NewWindowSystem returns the native window system
func NewWindowSystem() WindowSystem {
	return Win32{}
}

func (Win32) IsWindow(hwnd domain.WindowHandle) bool {
	if hwnd == 0 {
		return false
	}
	r, _, _ := procIsWindow.Call(uintptr(hwnd))
	return r != 0
}

func (Win32) Placement(hwnd domain.WindowHandle) (domain.Placement, error) {
	wp := windowPlacement{}
	wp.length = uint32(unsafe.Sizeof(wp))
	r, _, err := procGetWindowPlacement.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&wp)))
	if r == 0 {
		return domain.Placement{}, fmt.Errorf("GetWindowPlacement: %w", err)
	}
	return domain.Placement{
		Flags:          wp.flags,
		ShowCmd:        wp.showCmd,
		MinPosition:    wp.ptMinPosition,
		MaxPosition:    wp.ptMaxPosition,
		NormalPosition: wp.rcNormalPosition,
	}, nil
}

func (Win32) SetPlacement(hwnd domain.WindowHandle, p domain.Placement) error {
	wp := windowPlacement{
		flags:            p.Flags,
		showCmd:          p.ShowCmd,
		ptMinPosition:    p.MinPosition,
		ptMaxPosition:    p.MaxPosition,
		rcNormalPosition: p.NormalPosition,
	}
	wp.length = uint32(unsafe.Sizeof(wp))
	r, _, err := procSetWindowPlacement.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&wp)))
	if r == 0 {
		return fmt.Errorf("SetWindowPlacement: %w", err)
	}
	return nil
}

func (Win32) Maximize(hwnd domain.WindowHandle) error {
	// ShowWindow returns the previous visibility, not success
	procShowWindow.Call(uintptr(hwnd), swMaximize)
	return nil
}

func (Win32) Focus(hwnd domain.WindowHandle) error {
	r, _, _ := procSetForegroundWindow.Call(uintptr(hwnd))
	if r == 0 {
		return fmt.Errorf("SetForegroundWindow refused for %s", hwnd)
	}
	return nil
}

func (w Win32) Label(hwnd domain.WindowHandle) (string, error) {
	if title := windowText(hwnd); strings.TrimSpace(title) != "" {
		return title, nil
	}
	name, err := processName(hwnd)
	if err != nil {
		return "", err
	}
	return name, nil
}

func windowText(hwnd domain.WindowHandle) string {
	n, _, _ := procGetWindowTextLengthW.Call(uintptr(hwnd))
	if n == 0 {
		return ""
	}
	buf := make([]uint16, n+1)
	procGetWindowTextW.Call(uintptr(hwnd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
	return windows.UTF16ToString(buf)
}

func windowPID(hwnd domain.WindowHandle) uint32 {
	var pid uint32
	if _, err := windows.GetWindowThreadProcessId(windows.HWND(hwnd), &pid); err != nil {
		return 0
	}
	return pid
}

func processName(hwnd domain.WindowHandle) (string, error) {
	pid := windowPID(hwnd)
	if pid == 0 {
		return "", fmt.Errorf("no owning process for window %s", hwnd)
	}
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		return "", fmt.Errorf("open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(proc)

	buf := make([]uint16, windows.MAX_LONG_PATH)
	size := uint32(len(buf))
	if err := windows.QueryFullProcessImageName(proc, 0, &buf[0], &size); err != nil {
		return "", fmt.Errorf("query image name %d: %w", pid, err)
	}
	base := filepath.Base(windows.UTF16ToString(buf[:size]))
	return strings.TrimSuffix(base, filepath.Ext(base)), nil
}

func (Win32) IsElevatedAboveSelf(hwnd domain.WindowHandle) bool {
	if windows.GetCurrentProcessToken().IsElevated() {
		return false
	}
	pid := windowPID(hwnd)
	if pid == 0 {
		return false
	}
	proc, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, pid)
	if err != nil {
		// can't open: most likely elevated
		return true
	}
	defer windows.CloseHandle(proc)

	var token windows.Token
	if err := windows.OpenProcessToken(proc, windows.TOKEN_QUERY, &token); err != nil {
		return false
	}
	defer token.Close()
	return token.IsElevated()
}

// ForegroundWindow returns the window that currently has the keyboard focus
func ForegroundWindow() domain.WindowHandle {
	r, _, _ := procGetForegroundWindow.Call()
	return domain.WindowHandle(r)
}

// TopLevelWindow walks from a (possibly child) window up to its root window
func TopLevelWindow(hwnd domain.WindowHandle) domain.WindowHandle {
	r, _, _ := procGetAncestor.Call(uintptr(hwnd), gaRoot)
	return domain.WindowHandle(r)
}

// WindowAt returns the window under a screen point
func WindowAt(pt domain.Point) domain.WindowHandle {
	// POINT is passed by value, packed into one register on amd64/arm64
	packed := uintptr(uint32(pt.X)) | uintptr(uint32(pt.Y))<<32
	r, _, _ := procWindowFromPoint.Call(packed)
	return domain.WindowHandle(r)
}

// IsMaximizeButtonAt hit-tests pt against hwnd's non-client area. The probe
// uses a bounded SendMessageTimeout so a hung target cannot stall the caller.
func IsMaximizeButtonAt(hwnd domain.WindowHandle, pt domain.Point, timeoutMs uint32) bool {
	lParam := uintptr(uint32(uint16(pt.Y))<<16 | uint32(uint16(pt.X)))
	var result uintptr
	r, _, _ := procSendMessageTimeoutW.Call(
		uintptr(hwnd), wmNCHitTest, 0, lParam,
		smtoAbortIfHung, uintptr(timeoutMs), uintptr(unsafe.Pointer(&result)))
	return r != 0 && result == htMaxButton
}

// ShiftHeld reports whether a Shift key is currently down
func ShiftHeld() bool {
	r, _, _ := procGetAsyncKeyState.Call(vkShift)
	return r&0x8000 != 0
}

// BuildNumber returns the running Windows build
func BuildNumber() int {
	return int(windows.RtlGetVersion().BuildNumber)
}
