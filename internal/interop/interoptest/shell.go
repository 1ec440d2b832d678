// Package interoptest provides an in-memory virtual desktop shell for tests.
// It implements interop.Shell, interop.Binding and interop.WindowSystem,
// counts every native reference it hands out and can inject failures per
// operation.
package interoptest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop"
	"github.com/google/uuid"
)

// Op names an injectable operation
type Op string

const (
	OpBind          Op = "bind"
	OpCount         Op = "count"
	OpCurrent       Op = "current"
	OpCreate        Op = "create"
	OpDesktops      Op = "desktops"
	OpMove          Op = "move"
	OpAdjacent      Op = "adjacent"
	OpSwitch        Op = "switch"
	OpRemove        Op = "remove"
	OpFind          Op = "find"
	OpSetName       Op = "set_name"
	OpWindowDesktop Op = "window_desktop"
	OpPlacement     Op = "placement"
	OpSetPlacement  Op = "set_placement"
	OpMaximize      Op = "maximize"
	OpFocus         Op = "focus"
	OpLabel         Op = "label"
)

// ErrInjected is returned by operations configured with Fail
var ErrInjected = errors.New("injected failure")

// Call describes one operation for an Inject hook
type Call struct {
	Op      Op
	Desktop uuid.UUID
	Window  domain.WindowHandle
}

// Window is a fake top-level window
type Window struct {
	Handle    domain.WindowHandle
	Title     string
	Process   string
	Desktop   uuid.UUID
	Placement domain.Placement
	Elevated  bool
	Alive     bool
	Focused   bool
}

type desktop struct {
	id   uuid.UUID
	name string
}

// Shell is the fake desktop shell
type Shell struct {
	mu       sync.Mutex
	desktops []*desktop
	current  uuid.UUID
	windows  map[domain.WindowHandle]*Window
	fail     map[Op]error
	broken   map[interop.Layout]bool
	refs     []*Ref
	bindings []*Binding
	closes   int

	// Inject, when set, runs before every operation outside the shell lock.
	// A non-nil error fails the operation. It may panic or call back into
	// code under test.
	Inject func(c Call) error
}

// NewShell returns a shell with the given number of desktops; the first is current
func NewShell(desktops int) *Shell {
	s := &Shell{
		windows: make(map[domain.WindowHandle]*Window),
		fail:    make(map[Op]error),
		broken:  make(map[interop.Layout]bool),
	}
	for i := 0; i < desktops; i++ {
		s.desktops = append(s.desktops, &desktop{id: uuid.New(), name: fmt.Sprintf("Desktop %d", i+1)})
	}
	if len(s.desktops) > 0 {
		s.current = s.desktops[0].id
	}
	return s
}

// Factory returns an interop.ShellFactory that always hands out s
func (s *Shell) Factory() interop.ShellFactory {
	return func() (interop.Shell, error) {
		if err := s.check(Call{Op: OpBind}); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Fail makes every call of op return err (ErrInjected when err is nil)
func (s *Shell) Fail(op Op, err error) {
	if err == nil {
		err = ErrInjected
	}
	s.mu.Lock()
	s.fail[op] = err
	s.mu.Unlock()
}

// Heal clears a failure set with Fail
func (s *Shell) Heal(op Op) {
	s.mu.Lock()
	delete(s.fail, op)
	s.mu.Unlock()
}

// BreakLayout makes bindings of the given layout fail the smoke test the way a
// wrong vtable does: the shared Count slot works, FindDesktop finds nothing.
func (s *Shell) BreakLayout(l interop.Layout) {
	s.mu.Lock()
	s.broken[l] = true
	s.mu.Unlock()
}

func (s *Shell) check(c Call) error {
	if s.Inject != nil {
		if err := s.Inject(c); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[c.Op]
}

// AddWindow places a live window on the current desktop
func (s *Shell) AddWindow(hwnd domain.WindowHandle, title string, normal domain.Rect) *Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w := &Window{
		Handle:  hwnd,
		Title:   title,
		Process: "app",
		Desktop: s.current,
		Placement: domain.Placement{
			ShowCmd:        domain.ShowNormal,
			NormalPosition: normal,
		},
		Alive: true,
	}
	s.windows[hwnd] = w
	return w
}

// DestroyWindow marks a window as gone
func (s *Shell) DestroyWindow(hwnd domain.WindowHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[hwnd]; ok {
		w.Alive = false
	}
}

// Window returns a copy of the window state
func (s *Shell) Window(hwnd domain.WindowHandle) Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[hwnd]; ok {
		return *w
	}
	return Window{}
}

// SetElevated marks a window's owning process as elevated above this process
func (s *Shell) SetElevated(hwnd domain.WindowHandle, elevated bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[hwnd]; ok {
		w.Elevated = elevated
	}
}

// DesktopCount returns the number of live desktops
func (s *Shell) DesktopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.desktops)
}

// DesktopIDs returns the ids of all live desktops in order
func (s *Shell) DesktopIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uuid.UUID, len(s.desktops))
	for i, d := range s.desktops {
		ids[i] = d.id
	}
	return ids
}

// HasDesktop reports whether a desktop with id exists
func (s *Shell) HasDesktop(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// DesktopName returns the name of a live desktop
func (s *Shell) DesktopName(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOf(id); i >= 0 {
		return s.desktops[i].name
	}
	return ""
}

// CurrentID returns the id of the current desktop
func (s *Shell) CurrentID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// AddDesktop creates a desktop outside of any binding, as another program would
func (s *Shell) AddDesktop() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &desktop{id: uuid.New()}
	s.desktops = append(s.desktops, d)
	return d.id
}

// LeakedRefs returns the number of references handed out and never released
func (s *Shell) LeakedRefs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.refs {
		if r.releases == 0 {
			n++
		}
	}
	return n
}

// OverReleasedRefs returns the number of references released more than once
func (s *Shell) OverReleasedRefs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.refs {
		if r.releases > 1 {
			n++
		}
	}
	return n
}

// Bindings returns every binding created so far
func (s *Shell) Bindings() []*Binding {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Binding(nil), s.bindings...)
}

// Closes returns how many times Close was called
func (s *Shell) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// indexOf must be called with s.mu held
func (s *Shell) indexOf(id uuid.UUID) int {
	for i, d := range s.desktops {
		if d.id == id {
			return i
		}
	}
	return -1
}

// newRef must be called with s.mu held
func (s *Shell) newRef(id uuid.UUID) *Ref {
	r := &Ref{shell: s, id: id}
	s.refs = append(s.refs, r)
	return r
}

// interop.Shell

func (s *Shell) Bind(layout interop.Layout) (interop.Binding, error) {
	if err := s.check(Call{Op: OpBind}); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &Binding{shell: s, layout: layout}
	s.bindings = append(s.bindings, b)
	return b, nil
}

func (s *Shell) WindowDesktopID(hwnd domain.WindowHandle) (uuid.UUID, error) {
	if err := s.check(Call{Op: OpWindowDesktop, Window: hwnd}); err != nil {
		return uuid.Nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[hwnd]
	if !ok || !w.Alive {
		return uuid.Nil, fmt.Errorf("window %s not found", hwnd)
	}
	return w.Desktop, nil
}

func (s *Shell) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

// Ref is a counted fake desktop reference
type Ref struct {
	shell    *Shell
	id       uuid.UUID
	releases int
}

func (r *Ref) ID() (uuid.UUID, error) {
	return r.id, nil
}

func (r *Ref) Name() (string, error) {
	return r.shell.DesktopName(r.id), nil
}

func (r *Ref) Release() {
	r.shell.mu.Lock()
	defer r.shell.mu.Unlock()
	r.releases++
}

// Releases returns how many times the reference was released
func (r *Ref) Releases() int {
	r.shell.mu.Lock()
	defer r.shell.mu.Unlock()
	return r.releases
}

func refID(ref interop.DesktopRef) uuid.UUID {
	if r, ok := ref.(*Ref); ok && r != nil {
		return r.id
	}
	return uuid.Nil
}

// Binding is a fake layout binding
type Binding struct {
	shell    *Shell
	layout   interop.Layout
	releases int
}

// Releases returns how many times the binding was released
func (b *Binding) Releases() int {
	b.shell.mu.Lock()
	defer b.shell.mu.Unlock()
	return b.releases
}

func (b *Binding) Layout() interop.Layout { return b.layout }

func (b *Binding) Count() (int, error) {
	if err := b.shell.check(Call{Op: OpCount}); err != nil {
		return 0, err
	}
	b.shell.mu.Lock()
	defer b.shell.mu.Unlock()
	return len(b.shell.desktops), nil
}

func (b *Binding) CurrentDesktop() (interop.DesktopRef, error) {
	if err := b.shell.check(Call{Op: OpCurrent}); err != nil {
		return nil, err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.newRef(s.current), nil
}

func (b *Binding) CreateDesktop() (interop.DesktopRef, error) {
	if err := b.shell.check(Call{Op: OpCreate}); err != nil {
		return nil, err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	d := &desktop{id: uuid.New()}
	s.desktops = append(s.desktops, d)
	return s.newRef(d.id), nil
}

func (b *Binding) Desktops() ([]interop.DesktopRef, error) {
	if err := b.shell.check(Call{Op: OpDesktops}); err != nil {
		return nil, err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	refs := make([]interop.DesktopRef, 0, len(s.desktops))
	for _, d := range s.desktops {
		refs = append(refs, s.newRef(d.id))
	}
	return refs, nil
}

func (b *Binding) MoveWindowToDesktop(hwnd domain.WindowHandle, ref interop.DesktopRef) error {
	id := refID(ref)
	if err := b.shell.check(Call{Op: OpMove, Desktop: id, Window: hwnd}); err != nil {
		return err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[hwnd]
	if !ok || !w.Alive {
		return fmt.Errorf("window %s not found", hwnd)
	}
	if s.indexOf(id) < 0 {
		return fmt.Errorf("desktop %s not found", id)
	}
	w.Desktop = id
	return nil
}

func (b *Binding) AdjacentDesktop(from interop.DesktopRef, dir domain.Direction) (interop.DesktopRef, error) {
	id := refID(from)
	if err := b.shell.check(Call{Op: OpAdjacent, Desktop: id}); err != nil {
		return nil, err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("desktop %s not found", id)
	}
	switch dir {
	case domain.DirectionLeft:
		i--
	case domain.DirectionRight:
		i++
	default:
		return nil, fmt.Errorf("bad direction %d", dir)
	}
	if i < 0 || i >= len(s.desktops) {
		return nil, fmt.Errorf("no desktop to the %s", dir)
	}
	return s.newRef(s.desktops[i].id), nil
}

func (b *Binding) SwitchWithAnimation(ref interop.DesktopRef) error {
	id := refID(ref)
	if err := b.shell.check(Call{Op: OpSwitch, Desktop: id}); err != nil {
		return err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return fmt.Errorf("desktop %s not found", id)
	}
	s.current = id
	return nil
}

func (b *Binding) RemoveDesktop(ref, fallback interop.DesktopRef) error {
	id, fb := refID(ref), refID(fallback)
	if err := b.shell.check(Call{Op: OpRemove, Desktop: id}); err != nil {
		return err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("desktop %s not found", id)
	}
	if id == fb || s.indexOf(fb) < 0 {
		return fmt.Errorf("invalid fallback %s", fb)
	}
	for _, w := range s.windows {
		if w.Desktop == id {
			w.Desktop = fb
		}
	}
	if s.current == id {
		s.current = fb
	}
	s.desktops = append(s.desktops[:i], s.desktops[i+1:]...)
	return nil
}

func (b *Binding) FindDesktop(id uuid.UUID) (interop.DesktopRef, error) {
	if err := b.shell.check(Call{Op: OpFind, Desktop: id}); err != nil {
		return nil, err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken[b.layout] {
		return nil, nil
	}
	if s.indexOf(id) < 0 {
		return nil, fmt.Errorf("desktop %s not found", id)
	}
	return s.newRef(id), nil
}

func (b *Binding) SetDesktopName(ref interop.DesktopRef, name string) error {
	id := refID(ref)
	if err := b.shell.check(Call{Op: OpSetName, Desktop: id}); err != nil {
		return err
	}
	s := b.shell
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("desktop %s not found", id)
	}
	s.desktops[i].name = name
	return nil
}

func (b *Binding) Release() {
	b.shell.mu.Lock()
	defer b.shell.mu.Unlock()
	b.releases++
}
