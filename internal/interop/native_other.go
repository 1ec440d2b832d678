//go:build !windows

package interop

import (
	"fmt"

	"github.com/awsl-project/maxdesk/internal/domain"
)

// Supported reports why the native desktop layer cannot run here
func Supported() error {
	return fmt.Errorf("%w: %w", domain.ErrAdapterResolution, domain.ErrUnsupportedPlatform)
}

// InitThread is a no-op on non-Windows platforms
func InitThread() error { return nil }

// UninitThread is a no-op on non-Windows platforms
func UninitThread() {}

// NewShell always fails on non-Windows platforms
func NewShell() (Shell, error) {
	return nil, domain.ErrUnsupportedPlatform
}

// BuildNumber returns 0 on non-Windows platforms
func BuildNumber() int { return 0 }

// NewWindowSystem returns a window system that knows no windows
func NewWindowSystem() WindowSystem {
	return noWindows{}
}

type noWindows struct{}

func (noWindows) IsWindow(domain.WindowHandle) bool { return false }

func (noWindows) Placement(domain.WindowHandle) (domain.Placement, error) {
	return domain.Placement{}, domain.ErrUnsupportedPlatform
}

func (noWindows) SetPlacement(domain.WindowHandle, domain.Placement) error {
	return domain.ErrUnsupportedPlatform
}

func (noWindows) Maximize(domain.WindowHandle) error { return domain.ErrUnsupportedPlatform }

func (noWindows) Focus(domain.WindowHandle) error { return domain.ErrUnsupportedPlatform }

func (noWindows) Label(domain.WindowHandle) (string, error) {
	return "", domain.ErrUnsupportedPlatform
}

func (noWindows) IsElevatedAboveSelf(domain.WindowHandle) bool { return false }
