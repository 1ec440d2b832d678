package desktop

import "github.com/awsl-project/maxdesk/internal/domain"

// InputHandler receives the desktop input events. Implementations must not
// block: the calls come from inside input hooks.
type InputHandler interface {
	OnHotkey(hwnd domain.WindowHandle)
	OnMaximizeClick(hwnd domain.WindowHandle)
	OnWindowDestroyed(hwnd domain.WindowHandle)
	OnShellRestart()
}
