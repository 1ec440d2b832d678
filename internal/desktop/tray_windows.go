//go:build windows

package desktop

import (
	_ "embed"
	"log"

	"github.com/getlantern/systray"
	"golang.org/x/sys/windows"
)

//go:embed icon.ico
var iconData []byte

// TrayManager 管理系统托盘
type TrayManager struct {
	app     *App
	dataDir string
	state   trayState
	ready   chan struct{}

	menuStatus  *systray.MenuItem
	menuNotice  *systray.MenuItem
	menuRestore *systray.MenuItem
	menuUsage   *systray.MenuItem
	menuQuit    *systray.MenuItem
}

// NewTrayManager 创建托盘管理器
func NewTrayManager(app *App, dataDir string) *TrayManager {
	return &TrayManager{
		app:     app,
		dataDir: dataDir,
		ready:   make(chan struct{}),
	}
}

// Run 启动托盘, 阻塞直到 Quit
func (t *TrayManager) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit 退出托盘
func (t *TrayManager) Quit() {
	systray.Quit()
}

// onReady 托盘就绪回调
func (t *TrayManager) onReady() {
	log.Println("[Tray] Initializing system tray...")

	systray.SetIcon(iconData)
	systray.SetTitle("MaxDesk")

	// 状态（只读）
	t.menuStatus = systray.AddMenuItem("No windows tracked", "Relocated windows")
	t.menuStatus.Disable()
	t.menuNotice = systray.AddMenuItem("", "Last notice")
	t.menuNotice.Disable()
	t.menuNotice.Hide()
	systray.AddSeparator()

	t.menuRestore = systray.AddMenuItem("Restore All", "Bring every window back to its desktop")
	systray.AddSeparator()
	t.menuUsage = systray.AddMenuItem("How to Use", "Show usage")
	systray.AddSeparator()
	t.menuQuit = systray.AddMenuItem("Exit", "Restore all windows and exit")

	close(t.ready)
	t.refresh()

	if markFirstRun(t.dataDir) {
		t.ShowBalloon(Title, welcomeText)
	}

	go t.handleMenuEvents()
}

// onExit 托盘退出回调
func (t *TrayManager) onExit() {
	log.Println("[Tray] System tray exited")
}

// handleMenuEvents 处理菜单事件
func (t *TrayManager) handleMenuEvents() {
	for {
		select {
		case <-t.menuRestore.ClickedCh:
			log.Println("[Tray] Restore all clicked")
			t.app.RestoreAll()

		case <-t.menuUsage.ClickedCh:
			go showMessage(Title, usageText)

		case <-t.menuQuit.ClickedCh:
			log.Println("[Tray] Quit clicked")
			t.Quit()
			return
		}
	}
}

// refresh 更新托盘菜单状态
func (t *TrayManager) refresh() {
	select {
	case <-t.ready:
	default:
		return
	}
	t.menuStatus.SetTitle(t.state.status())
	systray.SetTooltip(t.state.tooltip())
	if notice := t.state.lastNotice(); notice != "" {
		t.menuNotice.SetTitle(notice)
		t.menuNotice.Show()
	}
}

// SetCount implements StatusView
func (t *TrayManager) SetCount(n int) {
	t.state.setCount(n)
	t.refresh()
}

// SetDegraded implements StatusView
func (t *TrayManager) SetDegraded(degraded bool) {
	t.state.setDegraded(degraded)
	t.refresh()
}

// ShowBalloon implements StatusView. systray has no balloon API, so the
// notice goes to the menu and the log.
func (t *TrayManager) ShowBalloon(title, subtitle string) {
	log.Printf("[Tray] %s: %s", title, subtitle)
	t.state.setNotice(title, subtitle)
	t.refresh()
}

func showMessage(title, text string) {
	const mbIconInformation = 0x40
	t, _ := windows.UTF16PtrFromString(title)
	m, _ := windows.UTF16PtrFromString(text)
	windows.MessageBox(0, m, t, mbIconInformation)
}
