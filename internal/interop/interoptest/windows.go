package interoptest

import (
	"fmt"

	"github.com/awsl-project/maxdesk/internal/domain"
)

// Windows adapts a Shell to interop.WindowSystem
type Windows struct {
	Shell *Shell
}

func (w Windows) live(hwnd domain.WindowHandle) (*Window, error) {
	win, ok := w.Shell.windows[hwnd]
	if !ok || !win.Alive {
		return nil, fmt.Errorf("window %s not found", hwnd)
	}
	return win, nil
}

func (w Windows) IsWindow(hwnd domain.WindowHandle) bool {
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := w.live(hwnd)
	return err == nil
}

func (w Windows) Placement(hwnd domain.WindowHandle) (domain.Placement, error) {
	if err := w.Shell.check(Call{Op: OpPlacement, Window: hwnd}); err != nil {
		return domain.Placement{}, err
	}
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	if err != nil {
		return domain.Placement{}, err
	}
	return win.Placement, nil
}

func (w Windows) SetPlacement(hwnd domain.WindowHandle, p domain.Placement) error {
	if err := w.Shell.check(Call{Op: OpSetPlacement, Window: hwnd}); err != nil {
		return err
	}
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	if err != nil {
		return err
	}
	win.Placement = p
	return nil
}

func (w Windows) Maximize(hwnd domain.WindowHandle) error {
	if err := w.Shell.check(Call{Op: OpMaximize, Window: hwnd}); err != nil {
		return err
	}
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	if err != nil {
		return err
	}
	win.Placement.ShowCmd = domain.ShowMaximized
	return nil
}

func (w Windows) Focus(hwnd domain.WindowHandle) error {
	if err := w.Shell.check(Call{Op: OpFocus, Window: hwnd}); err != nil {
		return err
	}
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	if err != nil {
		return err
	}
	for _, other := range s.windows {
		other.Focused = false
	}
	win.Focused = true
	return nil
}

func (w Windows) Label(hwnd domain.WindowHandle) (string, error) {
	if err := w.Shell.check(Call{Op: OpLabel, Window: hwnd}); err != nil {
		return "", err
	}
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	if err != nil {
		return "", err
	}
	if win.Title != "" {
		return win.Title, nil
	}
	return win.Process, nil
}

func (w Windows) IsElevatedAboveSelf(hwnd domain.WindowHandle) bool {
	s := w.Shell
	s.mu.Lock()
	defer s.mu.Unlock()
	win, err := w.live(hwnd)
	return err == nil && win.Elevated
}
