package vdesktop

import (
	"fmt"
	"log"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/google/uuid"
)

// DefaultMinBuild is the first Windows 11 build
const DefaultMinBuild = 22000

// Service wraps the resolved adapter with handle-based operations and
// releases every temporary native reference on every return path.
//
// Service is not safe for concurrent use; it must only be called on the
// thread that initialized COM.
type Service struct {
	factory  interop.ShellFactory
	minBuild int
	build    int

	shell   interop.Shell
	adapter *interop.Adapter
}

// NewService creates a service that opens shells with factory
func NewService(factory interop.ShellFactory, minBuild int) *Service {
	if minBuild <= 0 {
		minBuild = DefaultMinBuild
	}
	return &Service{factory: factory, minBuild: minBuild}
}

// Initialize gates on the minimum OS build and resolves the adapter
func (s *Service) Initialize(build int) error {
	s.build = build
	if build < s.minBuild {
		return fmt.Errorf("build %d below %d: %w", build, s.minBuild, domain.ErrUnsupportedBuild)
	}
	return s.open()
}

// Reinitialize tears down and rebuilds the adapter. Used after the shell
// restarts or to retry a failed initialization.
func (s *Service) Reinitialize() bool {
	s.teardown()
	if s.build < s.minBuild {
		return false
	}
	if err := s.open(); err != nil {
		log.Printf("[Desktops] Reinitialize failed: %v", err)
		return false
	}
	log.Printf("[Desktops] Reinitialized (%s)", s.adapter.Layout())
	return true
}

// Ready reports whether an adapter is available
func (s *Service) Ready() bool {
	return s.adapter != nil
}

// Close releases the adapter and the shell
func (s *Service) Close() {
	s.teardown()
}

func (s *Service) open() error {
	shell, err := s.factory()
	if err != nil {
		return fmt.Errorf("open shell: %w", err)
	}
	adapter, err := interop.Resolve(shell, s.build)
	if err != nil {
		shell.Close()
		return err
	}
	s.shell = shell
	s.adapter = adapter
	return nil
}

func (s *Service) teardown() {
	if s.adapter != nil {
		s.adapter.Close()
		s.adapter = nil
	}
	if s.shell != nil {
		if err := s.shell.Close(); err != nil {
			log.Printf("[Desktops] Warning: close shell: %v", err)
		}
		s.shell = nil
	}
}

// binding returns the adapter, or nil in degraded mode
func (s *Service) binding(op string) *interop.Adapter {
	if s.adapter == nil {
		log.Printf("[Desktops] Not ready, skipping %s", op)
	}
	return s.adapter
}

// GetAllDesktops lists every desktop in order
func (s *Service) GetAllDesktops() []domain.DesktopDescriptor {
	a := s.binding("GetAllDesktops")
	if a == nil {
		return nil
	}
	currentID, _ := s.GetCurrentDesktopID()

	refs, err := a.Desktops()
	if err != nil {
		log.Printf("[Desktops] Enumerate failed: %v", err)
		return nil
	}
	descriptors := make([]domain.DesktopDescriptor, 0, len(refs))
	for _, ref := range refs {
		id, err := ref.ID()
		if err == nil {
			name, _ := ref.Name()
			descriptors = append(descriptors, domain.DesktopDescriptor{
				ID:        id,
				Name:      name,
				IsCurrent: id == currentID,
			})
		}
		ref.Release()
	}
	return descriptors
}

// GetCurrentDesktopID returns the id of the desktop being shown
func (s *Service) GetCurrentDesktopID() (uuid.UUID, bool) {
	a := s.binding("GetCurrentDesktopID")
	if a == nil {
		return uuid.Nil, false
	}
	ref, err := a.CurrentDesktop()
	if err != nil {
		log.Printf("[Desktops] Current desktop failed: %v", err)
		return uuid.Nil, false
	}
	defer ref.Release()
	id, err := ref.ID()
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// FindDesktop returns an owned handle to the desktop with id, or nil
func (s *Service) FindDesktop(id uuid.UUID) *Handle {
	a := s.binding("FindDesktop")
	if a == nil {
		return nil
	}
	ref, err := a.FindDesktop(id)
	if err != nil || ref == nil {
		return nil
	}
	return newHandle(ref)
}

// CreateDesktop creates a desktop and returns an owned handle to it
func (s *Service) CreateDesktop() (*Handle, uuid.UUID, bool) {
	a := s.binding("CreateDesktop")
	if a == nil {
		return nil, uuid.Nil, false
	}
	ref, err := a.CreateDesktop()
	if err != nil {
		log.Printf("[Desktops] Create failed: %v", err)
		return nil, uuid.Nil, false
	}
	h := newHandle(ref)
	if h == nil {
		log.Printf("[Desktops] Created desktop has no readable id")
		return nil, uuid.Nil, false
	}
	return h, h.ID(), true
}

// SwitchToDesktop shows the desktop with the switch animation
func (s *Service) SwitchToDesktop(h *Handle) bool {
	a := s.binding("SwitchToDesktop")
	if a == nil || h.Released() {
		return false
	}
	if err := a.SwitchWithAnimation(h.native()); err != nil {
		log.Printf("[Desktops] Switch to %s failed: %v", h.ID(), err)
		return false
	}
	return true
}

// RemoveDesktop removes the desktop behind h, moving its windows to fallback.
// With a nil fallback the adjacent desktop to the left, then the right, is
// used. The caller keeps ownership of h and fallback.
func (s *Service) RemoveDesktop(h, fallback *Handle) bool {
	a := s.binding("RemoveDesktop")
	if a == nil || h.Released() {
		return false
	}
	if fallback == nil {
		fallback = s.adjacent(a, h)
		if fallback == nil {
			log.Printf("[Desktops] No fallback desktop next to %s", h.ID())
			return false
		}
		defer fallback.Release()
	}
	if fallback.Released() {
		return false
	}
	if err := a.RemoveDesktop(h.native(), fallback.native()); err != nil {
		log.Printf("[Desktops] Remove %s failed: %v", h.ID(), err)
		return false
	}
	return true
}

func (s *Service) adjacent(a *interop.Adapter, h *Handle) *Handle {
	for _, dir := range []domain.Direction{domain.DirectionLeft, domain.DirectionRight} {
		ref, err := a.AdjacentDesktop(h.native(), dir)
		if err != nil || ref == nil {
			continue
		}
		if adj := newHandle(ref); adj != nil {
			return adj
		}
	}
	return nil
}

// SetDesktopName renames the desktop behind h
func (s *Service) SetDesktopName(h *Handle, name string) bool {
	a := s.binding("SetDesktopName")
	if a == nil || h.Released() {
		return false
	}
	if err := a.SetDesktopName(h.native(), name); err != nil {
		log.Printf("[Desktops] Rename %s failed: %v", h.ID(), err)
		return false
	}
	return true
}

// MoveWindowToDesktop assigns a top-level window to the desktop behind h
func (s *Service) MoveWindowToDesktop(hwnd domain.WindowHandle, h *Handle) bool {
	a := s.binding("MoveWindowToDesktop")
	if a == nil || h.Released() {
		return false
	}
	if err := a.MoveWindowToDesktop(hwnd, h.native()); err != nil {
		log.Printf("[Desktops] Move %s to %s failed: %v", hwnd, h.ID(), err)
		return false
	}
	return true
}

// GetDesktopIDForWindow returns the desktop a window is assigned to
func (s *Service) GetDesktopIDForWindow(hwnd domain.WindowHandle) (uuid.UUID, bool) {
	if s.binding("GetDesktopIDForWindow") == nil {
		return uuid.Nil, false
	}
	id, err := s.shell.WindowDesktopID(hwnd)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}
