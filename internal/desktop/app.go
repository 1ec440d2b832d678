package desktop

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/awsl-project/maxdesk/internal/config"
	"github.com/awsl-project/maxdesk/internal/dispatch"
	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/awsl-project/maxdesk/internal/recovery"
	"github.com/awsl-project/maxdesk/internal/relocate"
	"github.com/awsl-project/maxdesk/internal/tracker"
	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

const loopQueueSize = 256

// StatusView shows the app state to the user
type StatusView interface {
	SetCount(n int)
	SetDegraded(degraded bool)
	ShowBalloon(title, subtitle string)
}

type nopView struct{}

func (nopView) SetCount(int) {}
func (nopView) SetDegraded(bool) {}
func (nopView) ShowBalloon(string, string) {}

// Deps are the native entry points the app runs on
type Deps struct {
	Shell        interop.ShellFactory
	Windows      interop.WindowSystem
	Build        func() int
	InitThread   func() error
	UninitThread func()
	Clock        clockwork.Clock
}

// NativeDeps returns the platform implementations
func NativeDeps() Deps {
	return Deps{
		Shell:        interop.NewShell,
		Windows:      interop.NewWindowSystem(),
		Build:        interop.BuildNumber,
		InitThread:   interop.InitThread,
		UninitThread: interop.UninitThread,
		Clock:        clockwork.NewRealClock(),
	}
}

// App owns the relocation engine and the designated thread it runs on
type App struct {
	cfg   *config.Config
	deps  Deps
	store recovery.Store

	loop    *dispatch.Loop
	service *vdesktop.Service
	tracker *tracker.Tracker
	orch    *relocate.Orchestrator

	mu         sync.Mutex
	view       StatusView
	reconciled bool
	count      atomic.Int64
	ready      atomic.Bool
	tracked    atomic.Pointer[map[domain.WindowHandle]struct{}]

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewApp wires the engine together. Nothing native is touched until Start.
func NewApp(cfg *config.Config, store recovery.Store, deps Deps) *App {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	a := &App{
		cfg:   cfg,
		deps:  deps,
		store: store,
		loop:  dispatch.NewLoop(loopQueueSize),
		view:  nopView{},
	}
	a.service = vdesktop.NewService(deps.Shell, cfg.MinBuild)
	a.tracker = tracker.New(store, deps.Windows.IsWindow, deps.Clock)
	a.tracker.OnChange(func(n int) {
		a.count.Store(int64(n))
		a.publishTracked()
		a.currentView().SetCount(n)
	})
	a.orch = relocate.New(a.service, a.tracker, deps.Windows, relocate.Options{
		SettleDelay: cfg.SettleDelay,
		Clock:       deps.Clock,
		Notify: func(title, subtitle string) {
			a.currentView().ShowBalloon(title, subtitle)
		},
	})
	return a
}

// SetView attaches the status display
func (a *App) SetView(v StatusView) {
	if v == nil {
		v = nopView{}
	}
	a.mu.Lock()
	a.view = v
	a.mu.Unlock()
}

func (a *App) currentView() StatusView {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.view
}

// Run starts the loop and the sweepers and blocks until ctx is done or the
// loop fails to start.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(gctx, a.initThread, a.teardown)
	})

	stale := dispatch.NewSweeper("cleanup stale entries", a.cfg.SweepInterval, a.deps.Clock, a.loop, func() {
		a.orch.CleanupStaleEntries()
	})
	g.Go(func() error { return stale.Run(gctx) })

	retry := dispatch.NewSweeper("reinitialize", a.cfg.RetryInterval, a.deps.Clock, a.loop, a.retry)
	g.Go(func() error { return retry.Run(gctx) })

	return g.Wait()
}

// Start runs the app in the background until Shutdown
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.done = make(chan struct{})
	go func() {
		defer close(a.done)
		if err := a.Run(ctx); err != nil {
			log.Printf("[App] Stopped with error: %v", err)
			a.err = err
		}
	}()
}

// Shutdown stops the app, restoring every relocated window, and waits up to
// timeout for it to finish.
func (a *App) Shutdown(timeout time.Duration) error {
	if a.cancel == nil {
		return nil
	}
	a.cancel()
	select {
	case <-a.done:
		return a.err
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %s", timeout)
	}
}

// initThread runs first on the designated thread
func (a *App) initThread() error {
	if err := a.deps.InitThread(); err != nil {
		return err
	}
	build := a.deps.Build()
	if err := a.service.Initialize(build); err != nil {
		log.Printf("[App] Desktop service unavailable (build %d), running degraded: %v", build, err)
		a.setReady(false)
		if errors.Is(err, domain.ErrUnsupportedBuild) {
			a.currentView().ShowBalloon("Unsupported Windows version",
				fmt.Sprintf("Windows 11 build %d or later is required.", a.cfg.MinBuild))
		} else {
			a.currentView().ShowBalloon("Virtual desktops unavailable",
				"The virtual desktop interface failed to initialize. Retrying in the background.")
		}
		return nil
	}
	a.becomeReady()
	return nil
}

// teardown runs last on the designated thread
func (a *App) teardown() {
	if err := a.orch.RestoreAll(); err != nil {
		log.Printf("[App] Warning: restore on exit: %v", err)
	}
	a.service.Close()
	a.deps.UninitThread()
	if closer, ok := a.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Printf("[App] Warning: close store: %v", err)
		}
	}
}

// becomeReady runs on the designated thread when the service gets an adapter
func (a *App) becomeReady() {
	a.setReady(true)
	if a.reconciled {
		return
	}
	a.reconciled = true
	if n := recovery.Reconcile(a.store, a.service, a.tracker.HoldsDesktop); n > 0 {
		log.Printf("[App] Removed %d orphaned desktop(s) from a previous run", n)
	}
}

func (a *App) setReady(ready bool) {
	a.ready.Store(ready)
	a.currentView().SetDegraded(!ready)
}

// retry runs on the designated thread while the service may be degraded
func (a *App) retry() {
	if a.service.Ready() {
		return
	}
	if a.service.Reinitialize() {
		log.Printf("[App] Desktop service recovered")
		a.becomeReady()
	}
}

// Ready reports whether the desktop service has an adapter
func (a *App) Ready() bool {
	return a.ready.Load()
}

// OnHotkey toggles the foreground window
func (a *App) OnHotkey(hwnd domain.WindowHandle) {
	a.toggle("hotkey", hwnd)
}

// OnMaximizeClick toggles the window whose maximize button was Shift-clicked
func (a *App) OnMaximizeClick(hwnd domain.WindowHandle) {
	a.toggle("maximize click", hwnd)
}

func (a *App) toggle(source string, hwnd domain.WindowHandle) {
	if hwnd == 0 {
		return
	}
	if !a.Ready() {
		log.Printf("[App] %s for %s ignored, desktop service not ready", source, hwnd)
		return
	}
	a.loop.Post(source, func() {
		if err := a.orch.Toggle(hwnd); err != nil {
			log.Printf("[App] Toggle %s: %v", hwnd, err)
		}
	})
}

// publishTracked copies the tracked handles for the input thread
func (a *App) publishTracked() {
	set := make(map[domain.WindowHandle]struct{})
	for _, hwnd := range a.tracker.Handles() {
		set[hwnd] = struct{}{}
	}
	a.tracked.Store(&set)
}

// IsTracked reports whether hwnd is relocated. Safe from any goroutine.
func (a *App) IsTracked(hwnd domain.WindowHandle) bool {
	set := a.tracked.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[hwnd]
	return ok
}

// OnWindowDestroyed reports a destroyed top-level window
func (a *App) OnWindowDestroyed(hwnd domain.WindowHandle) {
	// most destroyed windows were never relocated
	if !a.IsTracked(hwnd) {
		return
	}
	a.loop.Post("window destroyed", func() {
		a.orch.HandleWindowDestroyed(hwnd)
	})
}

// OnShellRestart rebuilds the adapter after the shell came back
func (a *App) OnShellRestart() {
	a.loop.Post("shell restart", func() {
		log.Printf("[App] Shell restarted, reinitializing")
		if a.service.Reinitialize() {
			a.becomeReady()
		} else {
			a.setReady(false)
		}
	})
}

// RestoreAll restores every relocated window
func (a *App) RestoreAll() {
	a.loop.Post("restore all", func() {
		if err := a.orch.RestoreAll(); err != nil {
			log.Printf("[App] Restore all: %v", err)
		}
	})
}

// TrackedCount returns the number of relocated windows as seen by the loop
func (a *App) TrackedCount(ctx context.Context) (int, error) {
	var n int
	if err := a.loop.Call(ctx, "tracked count", func() { n = a.orch.Count() }); err != nil {
		return int(a.count.Load()), err
	}
	return n, nil
}
