//go:build windows

package desktop

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop"
	"golang.org/x/sys/windows"
)

var (
	moduser32                  = windows.NewLazySystemDLL("user32.dll")
	modkernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procRegisterClassExW       = moduser32.NewProc("RegisterClassExW")
	procUnregisterClassW       = moduser32.NewProc("UnregisterClassW")
	procCreateWindowExW        = moduser32.NewProc("CreateWindowExW")
	procDestroyWindow          = moduser32.NewProc("DestroyWindow")
	procDefWindowProcW         = moduser32.NewProc("DefWindowProcW")
	procGetMessageW            = moduser32.NewProc("GetMessageW")
	procTranslateMessage       = moduser32.NewProc("TranslateMessage")
	procDispatchMessageW       = moduser32.NewProc("DispatchMessageW")
	procPostThreadMessageW     = moduser32.NewProc("PostThreadMessageW")
	procRegisterWindowMessageW = moduser32.NewProc("RegisterWindowMessageW")
	procRegisterHotKey         = moduser32.NewProc("RegisterHotKey")
	procUnregisterHotKey       = moduser32.NewProc("UnregisterHotKey")
	procSetWindowsHookExW      = moduser32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx    = moduser32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx         = moduser32.NewProc("CallNextHookEx")
	procSetWinEventHook        = moduser32.NewProc("SetWinEventHook")
	procUnhookWinEvent         = moduser32.NewProc("UnhookWinEvent")
	procGetModuleHandleW       = modkernel32.NewProc("GetModuleHandleW")
)

const (
	wmQuit        = 0x0012
	wmHotkey      = 0x0312
	wmLButtonDown = 0x0201

	modAlt      = 0x0001
	modControl  = 0x0002
	modShift    = 0x0004
	modNoRepeat = 0x4000
	vkX         = 0x58
	hotkeyID    = 1

	whMouseLL = 14

	eventObjectDestroy   = 0x8001
	winEventOutOfContext = 0x0000
	objidWindow          = 0
	childidSelf          = 0
)

const inputClassName = "MaxDeskInput"

type wndClassEx struct {
	size       uint32
	style      uint32
	wndProc    uintptr
	clsExtra   int32
	wndExtra   int32
	instance   windows.Handle
	icon       windows.Handle
	cursor     windows.Handle
	background windows.Handle
	menuName   *uint16
	className  *uint16
	iconSm     windows.Handle
}

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      domain.Point
	private uint32
}

type msllHookStruct struct {
	pt        domain.Point
	mouseData uint32
	flags     uint32
	time      uint32
	extraInfo uintptr
}

// inputHook 输入钩子状态, 只在输入线程上访问
type inputHook struct {
	handler        InputHandler
	probeTimeout   uint32
	hwnd           uintptr
	mouseHook      uintptr
	eventHook      uintptr
	taskbarCreated uint32
}

// Callbacks cannot be freed, so they are created once and dispatch to the
// running hook.
var (
	active        *inputHook
	callbacksOnce sync.Once
	wndProcCB     uintptr
	mouseProcCB   uintptr
	winEventCB    uintptr
)

func initCallbacks() {
	callbacksOnce.Do(func() {
		wndProcCB = windows.NewCallback(wndProc)
		mouseProcCB = windows.NewCallback(mouseProc)
		winEventCB = windows.NewCallback(winEventProc)
	})
}

// RunInput installs the hotkey, the maximize-button hook and the window
// destruction hook, then pumps messages on a locked thread until ctx is done.
func RunInput(ctx context.Context, handler InputHandler, probeTimeout time.Duration) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	initCallbacks()
	h := &inputHook{handler: handler, probeTimeout: uint32(probeTimeout.Milliseconds())}
	if err := h.install(); err != nil {
		h.uninstall()
		return err
	}
	active = h
	defer func() {
		active = nil
		h.uninstall()
	}()

	tid := windows.GetCurrentThreadId()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0)
		case <-done:
		}
	}()

	log.Println("[Input] Listening for Ctrl+Alt+Shift+X and Shift+Click on maximize")
	var m msg
	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("GetMessage: %w", err)
		case 0:
			log.Println("[Input] Stopped")
			return nil
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func (h *inputHook) install() error {
	instance, _, _ := procGetModuleHandleW.Call(0)
	className, _ := windows.UTF16PtrFromString(inputClassName)

	wc := wndClassEx{
		wndProc:   wndProcCB,
		instance:  windows.Handle(instance),
		className: className,
	}
	wc.size = uint32(unsafe.Sizeof(wc))
	if r, _, err := procRegisterClassExW.Call(uintptr(unsafe.Pointer(&wc))); r == 0 {
		return fmt.Errorf("RegisterClassEx: %w", err)
	}

	// A hidden top-level window: message-only windows miss TaskbarCreated.
	hwnd, _, err := procCreateWindowExW.Call(0,
		uintptr(unsafe.Pointer(className)), uintptr(unsafe.Pointer(className)),
		0, 0, 0, 0, 0, 0, 0, instance, 0)
	if hwnd == 0 {
		return fmt.Errorf("CreateWindowEx: %w", err)
	}
	h.hwnd = hwnd

	taskbar, _ := windows.UTF16PtrFromString("TaskbarCreated")
	r, _, _ := procRegisterWindowMessageW.Call(uintptr(unsafe.Pointer(taskbar)))
	h.taskbarCreated = uint32(r)

	if r, _, err := procRegisterHotKey.Call(hwnd, hotkeyID,
		modControl|modAlt|modShift|modNoRepeat, vkX); r == 0 {
		log.Printf("[Input] Warning: register hotkey (may already be registered): %v", err)
	}

	h.mouseHook, _, err = procSetWindowsHookExW.Call(whMouseLL, mouseProcCB, instance, 0)
	if h.mouseHook == 0 {
		log.Printf("[Input] Warning: mouse hook not installed: %v", err)
	}

	h.eventHook, _, err = procSetWinEventHook.Call(eventObjectDestroy, eventObjectDestroy,
		0, winEventCB, 0, 0, winEventOutOfContext)
	if h.eventHook == 0 {
		log.Printf("[Input] Warning: window event hook not installed: %v", err)
	}
	return nil
}

func (h *inputHook) uninstall() {
	if h.eventHook != 0 {
		procUnhookWinEvent.Call(h.eventHook)
		h.eventHook = 0
	}
	if h.mouseHook != 0 {
		procUnhookWindowsHookEx.Call(h.mouseHook)
		h.mouseHook = 0
	}
	if h.hwnd != 0 {
		procUnregisterHotKey.Call(h.hwnd, hotkeyID)
		procDestroyWindow.Call(h.hwnd)
		h.hwnd = 0
	}
	instance, _, _ := procGetModuleHandleW.Call(0)
	className, _ := windows.UTF16PtrFromString(inputClassName)
	procUnregisterClassW.Call(uintptr(unsafe.Pointer(className)), instance)
}

func wndProc(hwnd, message, wParam, lParam uintptr) uintptr {
	h := active
	if h != nil {
		switch {
		case message == wmHotkey && wParam == hotkeyID:
			fg := interop.ForegroundWindow()
			if fg != 0 && uintptr(fg) != h.hwnd {
				h.handler.OnHotkey(fg)
			}
			return 0
		case h.taskbarCreated != 0 && uint32(message) == h.taskbarCreated:
			h.handler.OnShellRestart()
			return 0
		}
	}
	r, _, _ := procDefWindowProcW.Call(hwnd, message, wParam, lParam)
	return r
}

// mouseProc runs inside the input-synchronous low-level hook. It only reads
// window state and posts; the relocation itself happens on the app loop.
func mouseProc(nCode, wParam, lParam uintptr) uintptr {
	if h := active; h != nil && int32(nCode) >= 0 && wParam == wmLButtonDown && interop.ShiftHeld() {
		info := (*msllHookStruct)(unsafe.Pointer(lParam))
		target := interop.WindowAt(info.pt)
		if target != 0 && interop.IsMaximizeButtonAt(target, info.pt, h.probeTimeout) {
			if top := interop.TopLevelWindow(target); top != 0 {
				h.handler.OnMaximizeClick(top)
				return 1
			}
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

func winEventProc(hook, event, hwnd, idObject, idChild, thread, eventTime uintptr) uintptr {
	if h := active; h != nil && event == eventObjectDestroy &&
		int32(idObject) == objidWindow && int32(idChild) == childidSelf && hwnd != 0 {
		h.handler.OnWindowDestroyed(domain.WindowHandle(hwnd))
	}
	return 0
}
