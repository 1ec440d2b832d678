package recovery

import (
	"testing"
	"time"

	"github.com/awsl-project/maxdesk/internal/interop/interoptest"
	"github.com/awsl-project/maxdesk/internal/vdesktop"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDesktops(t *testing.T, n int) (*vdesktop.Service, *interoptest.Shell) {
	t.Helper()
	shell := interoptest.NewShell(n)
	svc := vdesktop.NewService(shell.Factory(), 0)
	require.NoError(t, svc.Initialize(22631))
	t.Cleanup(svc.Close)
	return svc, shell
}

func TestReconcileRemovesOrphans(t *testing.T) {
	svc, shell := newDesktops(t, 1)
	orphanA := shell.AddDesktop()
	orphanB := shell.AddDesktop()
	gone := uuid.New()

	store := NewFileStore(t.TempDir())
	now := time.Now()
	require.NoError(t, store.Save([]Entry{
		{TempDesktopID: orphanA, ProcessName: strPtr("code"), CreatedAt: now},
		{TempDesktopID: gone, CreatedAt: now},
		{TempDesktopID: orphanB, CreatedAt: now},
	}))

	removed := Reconcile(store, svc, nil)
	assert.Equal(t, 2, removed)
	assert.False(t, shell.HasDesktop(orphanA))
	assert.False(t, shell.HasDesktop(orphanB))
	assert.Equal(t, 1, shell.DesktopCount())
	assert.NoFileExists(t, store.Path())
	assert.Zero(t, shell.LeakedRefs())
}

func TestReconcileKeepsLiveEntries(t *testing.T) {
	svc, shell := newDesktops(t, 1)
	live := shell.AddDesktop()
	orphan := shell.AddDesktop()

	store := NewFileStore(t.TempDir())
	now := time.Now().UTC()
	require.NoError(t, store.Save([]Entry{
		{TempDesktopID: live, CreatedAt: now},
		{TempDesktopID: orphan, CreatedAt: now},
	}))

	removed := Reconcile(store, svc, func(id uuid.UUID) bool { return id == live })
	assert.Equal(t, 1, removed)
	assert.True(t, shell.HasDesktop(live))
	assert.False(t, shell.HasDesktop(orphan))

	entries, err := store.Load()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, live, entries[0].TempDesktopID)
}

func TestReconcileRemoveFailureIsSkipped(t *testing.T) {
	svc, shell := newDesktops(t, 1)
	orphan := shell.AddDesktop()
	shell.Fail(interoptest.OpRemove, nil)

	store := NewFileStore(t.TempDir())
	require.NoError(t, store.Save([]Entry{{TempDesktopID: orphan, CreatedAt: time.Now()}}))

	assert.Zero(t, Reconcile(store, svc, nil))
	assert.True(t, shell.HasDesktop(orphan))
	assert.NoFileExists(t, store.Path())
	assert.Zero(t, shell.LeakedRefs())
}

func TestReconcileNothingStored(t *testing.T) {
	svc, shell := newDesktops(t, 2)

	assert.Zero(t, Reconcile(NewFileStore(t.TempDir()), svc, nil))
	assert.Equal(t, 2, shell.DesktopCount())
}
