package vdesktop

import (
	"sync/atomic"

	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/google/uuid"
)

// Handle is an exclusively owned reference to a live virtual desktop.
// Whoever holds it must call Release exactly once; later calls are no-ops.
type Handle struct {
	ref      interop.DesktopRef
	id       uuid.UUID
	released atomic.Bool
}

// newHandle takes ownership of ref. When the id cannot be read the ref is
// released and nil is returned.
func newHandle(ref interop.DesktopRef) *Handle {
	if ref == nil {
		return nil
	}
	id, err := ref.ID()
	if err != nil {
		ref.Release()
		return nil
	}
	return &Handle{ref: ref, id: id}
}

// ID returns the desktop id captured when the handle was obtained
func (h *Handle) ID() uuid.UUID {
	if h == nil {
		return uuid.Nil
	}
	return h.id
}

// Release drops the native reference
func (h *Handle) Release() {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}
	h.ref.Release()
}

// Released reports whether Release has been called
func (h *Handle) Released() bool {
	return h == nil || h.released.Load()
}

// native returns the underlying reference, or nil after release
func (h *Handle) native() interop.DesktopRef {
	if h.Released() {
		return nil
	}
	return h.ref
}
