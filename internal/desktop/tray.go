package desktop

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Title is shown in the tray tooltip and in dialogs
const Title = "Maximize to Virtual Desktop"

const usageHint = "Ctrl+Alt+Shift+X or Shift+Click maximize button"

// FirstRunMarker is created in the data dir after the welcome notice
const FirstRunMarker = ".firstrun"

const usageText = "Two ways to maximize a window to its own virtual desktop:\n\n" +
	"  - Hotkey: Ctrl+Alt+Shift+X\n" +
	"    Toggles the active window to/from a virtual desktop.\n\n" +
	"  - Shift+Click the maximize button\n" +
	"    Hold Shift and click any window's maximize button.\n\n" +
	"The window is moved to a new virtual desktop and maximized.\n" +
	"Close or restore the window to return to your original desktop.\n\n" +
	"Use \"Restore All\" in the tray menu to bring everything back."

const welcomeText = "Press Ctrl+Alt+Shift+X or Shift+Click the maximize button " +
	"to maximize a window to its own virtual desktop."

// trayState 托盘显示状态, 在托盘就绪前也可以更新
type trayState struct {
	mu       sync.Mutex
	count    int
	degraded bool
	notice   string
}

func (s *trayState) setCount(n int) {
	s.mu.Lock()
	s.count = n
	s.mu.Unlock()
}

func (s *trayState) setDegraded(d bool) {
	s.mu.Lock()
	s.degraded = d
	s.mu.Unlock()
}

func (s *trayState) setNotice(title, subtitle string) {
	s.mu.Lock()
	s.notice = strings.TrimSpace(title + ": " + subtitle)
	s.mu.Unlock()
}

// status 菜单第一行
func (s *trayState) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.degraded:
		return "Virtual desktops unavailable"
	case s.count == 0:
		return "No windows tracked"
	default:
		return fmt.Sprintf("%d window(s) on virtual desktops", s.count)
	}
}

// tooltip 托盘提示. Windows caps it at 127 characters.
func (s *trayState) tooltip() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := Title + "\n" + usageHint
	if s.degraded {
		text = Title + "\nVirtual desktop interface failed, retrying..."
	}
	if len(text) > 127 {
		text = text[:127]
	}
	return text
}

func (s *trayState) lastNotice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notice
}

// markFirstRun creates the first-run marker and reports whether this is the
// first run. Errors count as "not first" so the welcome never repeats.
func markFirstRun(dataDir string) bool {
	path := filepath.Join(dataDir, FirstRunMarker)
	if _, err := os.Stat(path); err == nil || !errors.Is(err, fs.ErrNotExist) {
		return false
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Printf("[Tray] Warning: first run marker: %v", err)
		return false
	}
	if err := os.WriteFile(path, nil, 0644); err != nil {
		log.Printf("[Tray] Warning: first run marker: %v", err)
		return false
	}
	return true
}
