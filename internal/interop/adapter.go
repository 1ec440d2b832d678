package interop

import (
	"fmt"
	"log"
	"sync"

	"github.com/awsl-project/maxdesk/internal/domain"
)

// Smoke test bounds for the desktop count. The count slot is shared by every
// layout, so a value outside this range means the binding is not usable at all.
const (
	minSaneDesktops = 1
	maxSaneDesktops = 200
)

// Adapter is the binding selected for the running OS build
type Adapter struct {
	Binding
	once sync.Once
}

// Close releases the underlying binding. Safe to call more than once.
func (a *Adapter) Close() {
	a.once.Do(a.Binding.Release)
}

// Resolve picks the binding whose layout matches the running OS build.
// The build-appropriate layout is tried first; when it fails the smoke test it
// is released and the other layout is tried.
func Resolve(shell Shell, build int) (*Adapter, error) {
	primary := PrimaryLayout(build)
	if a := tryLayout(shell, primary); a != nil {
		log.Printf("[Adapter] Using %s binding (build %d)", primary, build)
		return a, nil
	}

	fallback := primary.Other()
	log.Printf("[Adapter] Primary binding unusable, trying %s", fallback)
	if a := tryLayout(shell, fallback); a != nil {
		log.Printf("[Adapter] Fallback %s binding succeeded (build %d)", fallback, build)
		return a, nil
	}

	return nil, fmt.Errorf("build %d: %w", build, domain.ErrAdapterResolution)
}

// tryLayout binds and smoke-tests one layout. A binding that fails the smoke
// test is released before returning nil.
func tryLayout(shell Shell, layout Layout) *Adapter {
	b, err := shell.Bind(layout)
	if err != nil {
		log.Printf("[Adapter] Bind %s failed: %v", layout, err)
		return nil
	}
	if err := smokeTest(b); err != nil {
		log.Printf("[Adapter] %s binding failed smoke test: %v", layout, err)
		b.Release()
		return nil
	}
	return &Adapter{Binding: b}
}

// smokeTest calls Count, whose slot is identical across layouts, then
// FindDesktop, whose slot diverges. A wrong binding errors or finds nothing.
func smokeTest(b Binding) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	count, err := b.Count()
	if err != nil {
		return fmt.Errorf("count: %w", err)
	}
	if count < minSaneDesktops || count > maxSaneDesktops {
		return fmt.Errorf("implausible desktop count %d", count)
	}

	current, err := b.CurrentDesktop()
	if err != nil {
		return fmt.Errorf("current desktop: %w", err)
	}
	defer current.Release()

	id, err := current.ID()
	if err != nil {
		return fmt.Errorf("current desktop id: %w", err)
	}

	found, err := b.FindDesktop(id)
	if err != nil {
		return fmt.Errorf("find desktop: %w", err)
	}
	if found == nil {
		return fmt.Errorf("current desktop %s not found by id", id)
	}
	found.Release()
	return nil
}
