//go:build windows

package interop

import (
	"encoding/binary"
	"fmt"
	"syscall"
	"unsafe"

	"github.com/awsl-project/maxdesk/internal/domain"
	ole "github.com/go-ole/go-ole"
	"github.com/google/uuid"
	"golang.org/x/sys/windows"
)

var (
	clsidImmersiveShell                = ole.NewGUID("{C2F03A33-21F5-47FA-B4BB-156362A2F239}")
	clsidVirtualDesktopManagerInternal = ole.NewGUID("{C5E0CDCA-7B6E-41B2-9FC4-D93975CC467B}")
	clsidVirtualDesktopManager         = ole.NewGUID("{AA509086-5CA9-4C25-8F95-589D3C07B48A}")

	iidServiceProvider           = ole.NewGUID("{6D5140C1-7436-11CE-8034-00AA006009FA}")
	iidVirtualDesktopManager     = ole.NewGUID("{A5CD92FF-29BE-454C-8D04-D82879FB3F1B}")
	iidApplicationViewCollection = ole.NewGUID("{1841C6D7-4F9D-42C0-AF41-8747538F10E5}")
	iidVirtualDesktop            = ole.NewGUID("{3F07F4BE-B107-441A-AF0F-39D82529072C}")
)

var (
	modcombase                    = windows.NewLazySystemDLL("combase.dll")
	procWindowsCreateString       = modcombase.NewProc("WindowsCreateString")
	procWindowsDeleteString       = modcombase.NewProc("WindowsDeleteString")
	procWindowsGetStringRawBuffer = modcombase.NewProc("WindowsGetStringRawBuffer")
)

// IUnknown slots
const (
	slotRelease = 2
)

// slots on interfaces whose layout is the same on every supported build
const (
	slotQueryService        = 3 // IServiceProvider
	slotGetWindowDesktopID  = 4 // IVirtualDesktopManager
	slotGetViewForHwnd      = 6 // IApplicationViewCollection
	slotDesktopGetID        = 4 // IVirtualDesktop
	slotDesktopGetName      = 5 // IVirtualDesktop
	slotObjectArrayGetCount = 3 // IObjectArray
	slotObjectArrayGetAt    = 4 // IObjectArray
)

// managerTable holds the IVirtualDesktopManagerInternal IID and method slots
// for one layout. 24H2 inserted SwitchDesktopAndMoveForegroundView after
// SwitchDesktop, shifting every later slot by one.
type managerTable struct {
	iid            *ole.GUID
	getCount       uintptr
	moveView       uintptr
	getCurrent     uintptr
	getDesktops    uintptr
	getAdjacent    uintptr
	create         uintptr
	remove         uintptr
	find           uintptr
	setName        uintptr
	switchAnimated uintptr
}

var managerTables = map[Layout]managerTable{
	LayoutPre24H2: {
		iid:            ole.NewGUID("{A3175F2D-239C-4BD2-8AA0-EEBA8B0B138E}"),
		getCount:       3,
		moveView:       4,
		getCurrent:     6,
		getDesktops:    7,
		getAdjacent:    8,
		create:         10,
		remove:         12,
		find:           13,
		setName:        15,
		switchAnimated: 21,
	},
	Layout24H2: {
		iid:            ole.NewGUID("{53F5CA0B-158F-4124-900C-057158060B27}"),
		getCount:       3,
		moveView:       4,
		getCurrent:     6,
		getDesktops:    7,
		getAdjacent:    8,
		create:         11,
		remove:         13,
		find:           14,
		setName:        16,
		switchAnimated: 22,
	},
}

// Supported reports whether the native desktop layer can run here
func Supported() error { return nil }

// InitThread initializes COM (single-threaded apartment) on the calling thread
func InitThread() error {
	err := ole.CoInitializeEx(0, ole.COINIT_APARTMENTTHREADED)
	if err == nil {
		return nil
	}
	// S_FALSE: already initialized on this thread
	if oleErr, ok := err.(*ole.OleError); ok && oleErr.Code() == 1 {
		return nil
	}
	return fmt.Errorf("CoInitializeEx: %w", err)
}

// UninitThread balances InitThread
func UninitThread() {
	ole.CoUninitialize()
}

// comCall invokes the method at slot on a COM interface pointer and turns a
// failing HRESULT into an error.
func comCall(obj uintptr, slot uintptr, args ...uintptr) error {
	if obj == 0 {
		return fmt.Errorf("nil interface pointer")
	}
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	fn := *(*uintptr)(unsafe.Pointer(vtbl + slot*unsafe.Sizeof(uintptr(0))))
	hr, _, _ := syscall.SyscallN(fn, append([]uintptr{obj}, args...)...)
	if int32(hr) < 0 {
		return ole.NewError(hr)
	}
	return nil
}

func comRelease(obj uintptr) {
	if obj == 0 {
		return
	}
	vtbl := *(*uintptr)(unsafe.Pointer(obj))
	fn := *(*uintptr)(unsafe.Pointer(vtbl + slotRelease*unsafe.Sizeof(uintptr(0))))
	syscall.SyscallN(fn, obj)
}

func guidToUUID(g *ole.GUID) uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.Data1)
	binary.BigEndian.PutUint16(u[4:6], g.Data2)
	binary.BigEndian.PutUint16(u[6:8], g.Data3)
	copy(u[8:], g.Data4[:])
	return u
}

func uuidToGUID(u uuid.UUID) ole.GUID {
	var g ole.GUID
	g.Data1 = binary.BigEndian.Uint32(u[0:4])
	g.Data2 = binary.BigEndian.Uint16(u[4:6])
	g.Data3 = binary.BigEndian.Uint16(u[6:8])
	copy(g.Data4[:], u[8:])
	return g
}

// comShell holds the immersive shell service provider plus the two helper
// interfaces that are not layout dependent.
type comShell struct {
	serviceProvider uintptr
	views           uintptr
	manager         uintptr
}

// NewShell activates the immersive shell on the calling thread. COM must have
// been initialized on this thread with InitThread.
func NewShell() (Shell, error) {
	sp, err := ole.CreateInstance(clsidImmersiveShell, iidServiceProvider)
	if err != nil {
		return nil, fmt.Errorf("create immersive shell: %w", err)
	}
	s := &comShell{serviceProvider: uintptr(unsafe.Pointer(sp))}

	views, err := s.queryService(iidApplicationViewCollection, iidApplicationViewCollection)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("query application view collection: %w", err)
	}
	s.views = views

	mgr, err := ole.CreateInstance(clsidVirtualDesktopManager, iidVirtualDesktopManager)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("create virtual desktop manager: %w", err)
	}
	s.manager = uintptr(unsafe.Pointer(mgr))

	return s, nil
}

func (s *comShell) queryService(service, iid *ole.GUID) (uintptr, error) {
	var out uintptr
	err := comCall(s.serviceProvider, slotQueryService,
		uintptr(unsafe.Pointer(service)),
		uintptr(unsafe.Pointer(iid)),
		uintptr(unsafe.Pointer(&out)))
	if err != nil {
		return 0, err
	}
	if out == 0 {
		return 0, fmt.Errorf("QueryService returned no interface")
	}
	return out, nil
}

func (s *comShell) Bind(layout Layout) (Binding, error) {
	table, ok := managerTables[layout]
	if !ok {
		return nil, fmt.Errorf("unknown layout %d", layout)
	}
	ptr, err := s.queryService(clsidVirtualDesktopManagerInternal, table.iid)
	if err != nil {
		return nil, fmt.Errorf("query %s desktop manager: %w", layout, err)
	}
	return &comBinding{ptr: ptr, layout: layout, table: table, shell: s}, nil
}

func (s *comShell) WindowDesktopID(hwnd domain.WindowHandle) (uuid.UUID, error) {
	var g ole.GUID
	if err := comCall(s.manager, slotGetWindowDesktopID, uintptr(hwnd), uintptr(unsafe.Pointer(&g))); err != nil {
		return uuid.Nil, err
	}
	id := guidToUUID(&g)
	if id == uuid.Nil {
		return uuid.Nil, fmt.Errorf("window %s has no desktop", hwnd)
	}
	return id, nil
}

// viewForWindow returns an owned IApplicationView pointer
func (s *comShell) viewForWindow(hwnd domain.WindowHandle) (uintptr, error) {
	var view uintptr
	if err := comCall(s.views, slotGetViewForHwnd, uintptr(hwnd), uintptr(unsafe.Pointer(&view))); err != nil {
		return 0, err
	}
	if view == 0 {
		return 0, fmt.Errorf("no application view for window %s", hwnd)
	}
	return view, nil
}

func (s *comShell) Close() error {
	comRelease(s.manager)
	comRelease(s.views)
	comRelease(s.serviceProvider)
	s.manager, s.views, s.serviceProvider = 0, 0, 0
	return nil
}

// comBinding is IVirtualDesktopManagerInternal viewed through one layout
type comBinding struct {
	ptr    uintptr
	layout Layout
	table  managerTable
	shell  *comShell
}

func (b *comBinding) Layout() Layout { return b.layout }

func (b *comBinding) Count() (int, error) {
	var n int32
	if err := comCall(b.ptr, b.table.getCount, uintptr(unsafe.Pointer(&n))); err != nil {
		return 0, err
	}
	return int(n), nil
}

func (b *comBinding) desktopOut(slot uintptr, args ...uintptr) (DesktopRef, error) {
	var out uintptr
	args = append(args, uintptr(unsafe.Pointer(&out)))
	if err := comCall(b.ptr, slot, args...); err != nil {
		return nil, err
	}
	if out == 0 {
		return nil, nil
	}
	return &comDesktop{ptr: out}, nil
}

func (b *comBinding) CurrentDesktop() (DesktopRef, error) {
	d, err := b.desktopOut(b.table.getCurrent)
	if err == nil && d == nil {
		err = fmt.Errorf("no current desktop")
	}
	return d, err
}

func (b *comBinding) CreateDesktop() (DesktopRef, error) {
	d, err := b.desktopOut(b.table.create)
	if err == nil && d == nil {
		err = fmt.Errorf("create returned no desktop")
	}
	return d, err
}

func (b *comBinding) Desktops() ([]DesktopRef, error) {
	var array uintptr
	if err := comCall(b.ptr, b.table.getDesktops, uintptr(unsafe.Pointer(&array))); err != nil {
		return nil, err
	}
	defer comRelease(array)

	var count uint32
	if err := comCall(array, slotObjectArrayGetCount, uintptr(unsafe.Pointer(&count))); err != nil {
		return nil, err
	}

	desktops := make([]DesktopRef, 0, count)
	for i := uint32(0); i < count; i++ {
		var out uintptr
		err := comCall(array, slotObjectArrayGetAt,
			uintptr(i),
			uintptr(unsafe.Pointer(iidVirtualDesktop)),
			uintptr(unsafe.Pointer(&out)))
		if err != nil {
			for _, d := range desktops {
				d.Release()
			}
			return nil, fmt.Errorf("desktop %d: %w", i, err)
		}
		desktops = append(desktops, &comDesktop{ptr: out})
	}
	return desktops, nil
}

func (b *comBinding) MoveWindowToDesktop(hwnd domain.WindowHandle, desktop DesktopRef) error {
	d, err := asCOM(desktop)
	if err != nil {
		return err
	}
	view, err := b.shell.viewForWindow(hwnd)
	if err != nil {
		return err
	}
	defer comRelease(view)
	return comCall(b.ptr, b.table.moveView, view, d.ptr)
}

func (b *comBinding) AdjacentDesktop(from DesktopRef, dir domain.Direction) (DesktopRef, error) {
	d, err := asCOM(from)
	if err != nil {
		return nil, err
	}
	return b.desktopOut(b.table.getAdjacent, d.ptr, uintptr(dir))
}

func (b *comBinding) SwitchWithAnimation(desktop DesktopRef) error {
	d, err := asCOM(desktop)
	if err != nil {
		return err
	}
	return comCall(b.ptr, b.table.switchAnimated, d.ptr)
}

func (b *comBinding) RemoveDesktop(desktop, fallback DesktopRef) error {
	d, err := asCOM(desktop)
	if err != nil {
		return err
	}
	f, err := asCOM(fallback)
	if err != nil {
		return err
	}
	return comCall(b.ptr, b.table.remove, d.ptr, f.ptr)
}

func (b *comBinding) FindDesktop(id uuid.UUID) (DesktopRef, error) {
	g := uuidToGUID(id)
	return b.desktopOut(b.table.find, uintptr(unsafe.Pointer(&g)))
}

func (b *comBinding) SetDesktopName(desktop DesktopRef, name string) error {
	d, err := asCOM(desktop)
	if err != nil {
		return err
	}
	hstr, err := newHString(name)
	if err != nil {
		return err
	}
	defer deleteHString(hstr)
	return comCall(b.ptr, b.table.setName, d.ptr, hstr)
}

func (b *comBinding) Release() {
	comRelease(b.ptr)
	b.ptr = 0
}

// comDesktop is an owned IVirtualDesktop pointer
type comDesktop struct {
	ptr uintptr
}

func asCOM(ref DesktopRef) (*comDesktop, error) {
	d, ok := ref.(*comDesktop)
	if !ok || d == nil || d.ptr == 0 {
		return nil, fmt.Errorf("not a live desktop reference")
	}
	return d, nil
}

func (d *comDesktop) ID() (uuid.UUID, error) {
	var g ole.GUID
	if err := comCall(d.ptr, slotDesktopGetID, uintptr(unsafe.Pointer(&g))); err != nil {
		return uuid.Nil, err
	}
	return guidToUUID(&g), nil
}

func (d *comDesktop) Name() (string, error) {
	var hstr uintptr
	if err := comCall(d.ptr, slotDesktopGetName, uintptr(unsafe.Pointer(&hstr))); err != nil {
		return "", err
	}
	if hstr == 0 {
		return "", nil
	}
	defer deleteHString(hstr)

	var length uint32
	buf, _, _ := procWindowsGetStringRawBuffer.Call(hstr, uintptr(unsafe.Pointer(&length)))
	if buf == 0 || length == 0 {
		return "", nil
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(buf))), nil
}

func (d *comDesktop) Release() {
	comRelease(d.ptr)
	d.ptr = 0
}

func newHString(s string) (uintptr, error) {
	u, err := windows.UTF16FromString(s)
	if err != nil {
		return 0, err
	}
	var hstr uintptr
	// length excludes the terminating NUL
	hr, _, _ := procWindowsCreateString.Call(
		uintptr(unsafe.Pointer(&u[0])),
		uintptr(len(u)-1),
		uintptr(unsafe.Pointer(&hstr)))
	if int32(hr) < 0 {
		return 0, ole.NewError(hr)
	}
	return hstr, nil
}

func deleteHString(hstr uintptr) {
	if hstr != 0 {
		procWindowsDeleteString.Call(hstr)
	}
}
