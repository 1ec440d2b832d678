package tracker

import (
	"errors"
	"testing"
	"time"

	"github.com/awsl-project/maxdesk/internal/domain"
	"github.com/awsl-project/maxdesk/internal/interop/interoptest"
	"github.com/awsl-project/maxdesk/internal/recovery"
	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	shell   *interoptest.Shell
	svc     *vdesktop.Service
	store   *recovery.FileStore
	clock   *clockwork.FakeClock
	tracker *Tracker
	origin  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	shell := interoptest.NewShell(1)
	svc := vdesktop.NewService(shell.Factory(), 0)
	require.NoError(t, svc.Initialize(22631))
	t.Cleanup(svc.Close)

	f := &fixture{
		shell:  shell,
		svc:    svc,
		store:  recovery.NewFileStore(t.TempDir()),
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)),
		origin: shell.CurrentID(),
	}
	f.tracker = New(f.store, interoptest.Windows{Shell: shell}.IsWindow, f.clock)
	return f
}

func (f *fixture) newDesktop(t *testing.T) (*vdesktop.Handle, uuid.UUID) {
	t.Helper()
	h, id, ok := f.svc.CreateDesktop()
	require.True(t, ok)
	return h, id
}

// projection reads back what the store holds
func (f *fixture) projection(t *testing.T) []recovery.Entry {
	t.Helper()
	entries, err := f.store.Load()
	require.NoError(t, err)
	return entries
}

func TestTrackAndUntrack(t *testing.T) {
	f := newFixture(t)
	h, id := f.newDesktop(t)
	placement := domain.Placement{ShowCmd: domain.ShowNormal, NormalPosition: domain.Rect{Left: 10, Top: 20, Right: 810, Bottom: 620}}

	assert.False(t, f.tracker.IsTracked(1))
	entry, err := f.tracker.Track(1, f.origin, id, h, "notepad", placement)
	require.NoError(t, err)
	assert.Equal(t, f.clock.Now(), entry.CreatedAt)

	assert.True(t, f.tracker.IsTracked(1))
	assert.Equal(t, 1, f.tracker.Count())
	assert.Same(t, entry, f.tracker.Get(1))
	assert.True(t, f.tracker.HoldsDesktop(id))

	stored := f.projection(t)
	require.Len(t, stored, 1)
	assert.Equal(t, id, stored[0].TempDesktopID)
	require.NotNil(t, stored[0].ProcessName)
	assert.Equal(t, "notepad", *stored[0].ProcessName)

	got := f.tracker.Untrack(1)
	require.NotNil(t, got)
	assert.Equal(t, placement, got.OriginalPlacement)
	assert.False(t, got.TempDesktop.Released(), "untrack hands ownership to the caller")
	assert.Zero(t, f.tracker.Count())
	assert.NoFileExists(t, f.store.Path(), "empty set deletes the file")

	assert.Nil(t, f.tracker.Untrack(1))
	got.TempDesktop.Release()
}

func TestTrackRejectsSameDesktop(t *testing.T) {
	f := newFixture(t)
	h, _ := f.newDesktop(t)
	defer h.Release()

	_, err := f.tracker.Track(1, f.origin, f.origin, h, "", domain.Placement{})
	assert.True(t, errors.Is(err, domain.ErrPrecondition))
	assert.Zero(t, f.tracker.Count())
	assert.NoFileExists(t, f.store.Path())
}

func TestTrackReplacesAndReleasesDisplaced(t *testing.T) {
	f := newFixture(t)
	first, firstID := f.newDesktop(t)
	second, secondID := f.newDesktop(t)

	_, err := f.tracker.Track(1, f.origin, firstID, first, "a", domain.Placement{})
	require.NoError(t, err)
	_, err = f.tracker.Track(1, f.origin, secondID, second, "a", domain.Placement{})
	require.NoError(t, err)

	assert.True(t, first.Released())
	assert.False(t, second.Released())
	assert.Equal(t, 1, f.tracker.Count())

	stored := f.projection(t)
	require.Len(t, stored, 1)
	assert.Equal(t, secondID, stored[0].TempDesktopID)

	f.tracker.Untrack(1).TempDesktop.Release()
	assert.Zero(t, f.shell.LeakedRefs())
	assert.Zero(t, f.shell.OverReleasedRefs())
}

func TestProjectionFollowsEveryMutation(t *testing.T) {
	f := newFixture(t)
	var ids []uuid.UUID
	for hwnd := domain.WindowHandle(1); hwnd <= 3; hwnd++ {
		h, id := f.newDesktop(t)
		ids = append(ids, id)
		_, err := f.tracker.Track(hwnd, f.origin, id, h, "", domain.Placement{})
		require.NoError(t, err)
		f.clock.Advance(time.Second)

		stored := f.projection(t)
		require.Len(t, stored, int(hwnd))
		for i, e := range stored {
			assert.Equal(t, ids[i], e.TempDesktopID)
			assert.Nil(t, e.ProcessName)
		}
	}

	f.tracker.Untrack(2).TempDesktop.Release()
	stored := f.projection(t)
	require.Len(t, stored, 2)
	assert.Equal(t, ids[0], stored[0].TempDesktopID)
	assert.Equal(t, ids[2], stored[1].TempDesktopID)

	all := f.tracker.GetAll()
	require.Len(t, all, 2)
	assert.Equal(t, domain.WindowHandle(1), all[0].Window)
	assert.Equal(t, domain.WindowHandle(3), all[1].Window)

	f.tracker.Untrack(1).TempDesktop.Release()
	f.tracker.Untrack(3).TempDesktop.Release()
	assert.NoFileExists(t, f.store.Path())
}

func TestGetStaleHandles(t *testing.T) {
	f := newFixture(t)
	f.shell.AddWindow(1, "live", domain.Rect{})
	f.shell.AddWindow(2, "dead", domain.Rect{})
	for _, hwnd := range []domain.WindowHandle{1, 2, 3} {
		h, id := f.newDesktop(t)
		_, err := f.tracker.Track(hwnd, f.origin, id, h, "", domain.Placement{})
		require.NoError(t, err)
	}
	f.shell.DestroyWindow(2)

	assert.ElementsMatch(t, []domain.WindowHandle{2, 3}, f.tracker.GetStaleHandles())
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)
	var counts []int
	f.tracker.OnChange(func(n int) { counts = append(counts, n) })

	h, id := f.newDesktop(t)
	_, err := f.tracker.Track(7, f.origin, id, h, "", domain.Placement{})
	require.NoError(t, err)
	f.tracker.Untrack(7).TempDesktop.Release()
	f.tracker.Untrack(7)

	assert.Equal(t, []int{1, 0}, counts)
}

func TestHandlesSeenFromOnChange(t *testing.T) {
	f := newFixture(t)
	var seen [][]domain.WindowHandle
	f.tracker.OnChange(func(int) { seen = append(seen, f.tracker.Handles()) })

	for _, hwnd := range []domain.WindowHandle{4, 9} {
		h, id := f.newDesktop(t)
		_, err := f.tracker.Track(hwnd, f.origin, id, h, "", domain.Placement{})
		require.NoError(t, err)
	}
	f.tracker.Untrack(4).TempDesktop.Release()

	require.Len(t, seen, 3)
	assert.ElementsMatch(t, []domain.WindowHandle{4}, seen[0])
	assert.ElementsMatch(t, []domain.WindowHandle{4, 9}, seen[1])
	assert.ElementsMatch(t, []domain.WindowHandle{9}, seen[2])
	assert.ElementsMatch(t, []domain.WindowHandle{9}, f.tracker.Handles())
}

type failingStore struct{ saves int }

func (s *failingStore) Save([]recovery.Entry) error {
	s.saves++
	return errors.New("disk full")
}
func (s *failingStore) Load() ([]recovery.Entry, error) { return nil, nil }
func (s *failingStore) Delete() error                   { return nil }

func TestSaveFailureIsNotPropagated(t *testing.T) {
	f := newFixture(t)
	store := &failingStore{}
	tr := New(store, nil, f.clock)

	h, id := f.newDesktop(t)
	_, err := tr.Track(1, f.origin, id, h, "", domain.Placement{})
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Count())
	tr.Untrack(1).TempDesktop.Release()
	assert.Equal(t, 2, store.saves)
}
