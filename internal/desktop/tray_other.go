//go:build !windows

package desktop

import (
	"log"
	"sync"
)

// TrayManager stub for non-Windows platforms. It logs what the tray would show.
type TrayManager struct {
	state trayState
	quit  chan struct{}
	once  sync.Once
}

// NewTrayManager creates a headless tray manager
func NewTrayManager(app *App, dataDir string) *TrayManager {
	return &TrayManager{quit: make(chan struct{})}
}

// Run blocks until Quit
func (t *TrayManager) Run() {
	<-t.quit
}

// Quit unblocks Run
func (t *TrayManager) Quit() {
	t.once.Do(func() { close(t.quit) })
}

func (t *TrayManager) SetCount(n int) {
	t.state.setCount(n)
	log.Printf("[Tray] %s", t.state.status())
}

func (t *TrayManager) SetDegraded(degraded bool) {
	t.state.setDegraded(degraded)
}

func (t *TrayManager) ShowBalloon(title, subtitle string) {
	log.Printf("[Tray] %s: %s", title, subtitle)
	t.state.setNotice(title, subtitle)
}
