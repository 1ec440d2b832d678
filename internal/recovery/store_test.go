package recovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func sampleEntries() []Entry {
	base := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return []Entry{
		{TempDesktopID: uuid.New(), ProcessName: strPtr("notepad"), CreatedAt: base},
		{TempDesktopID: uuid.New(), ProcessName: nil, CreatedAt: base.Add(time.Minute)},
	}
}

func assertSameEntries(t *testing.T, want, got []Entry) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].TempDesktopID, got[i].TempDesktopID)
		assert.Equal(t, want[i].ProcessName, got[i].ProcessName)
		assert.True(t, want[i].CreatedAt.Equal(got[i].CreatedAt), "CreatedAt %v != %v", want[i].CreatedAt, got[i].CreatedAt)
	}
}

func TestStores(t *testing.T) {
	backends := []struct {
		name string
		new  func(t *testing.T) (Store, string)
	}{
		{
			name: "file",
			new: func(t *testing.T) (Store, string) {
				s := NewFileStore(t.TempDir())
				return s, s.Path()
			},
		},
		{
			name: "sqlite",
			new: func(t *testing.T) (Store, string) {
				s := NewSQLiteStore(t.TempDir())
				t.Cleanup(func() { s.Close() })
				return s, s.Path()
			},
		},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			t.Run("load absent is empty", func(t *testing.T) {
				s, path := b.new(t)
				entries, err := s.Load()
				require.NoError(t, err)
				assert.Empty(t, entries)
				assert.NoFileExists(t, path)
			})

			t.Run("save then load", func(t *testing.T) {
				s, path := b.new(t)
				want := sampleEntries()
				require.NoError(t, s.Save(want))
				assert.FileExists(t, path)

				got, err := s.Load()
				require.NoError(t, err)
				assertSameEntries(t, want, got)
			})

			t.Run("save replaces previous set", func(t *testing.T) {
				s, _ := b.new(t)
				all := sampleEntries()
				require.NoError(t, s.Save(all))
				require.NoError(t, s.Save(all[1:]))

				got, err := s.Load()
				require.NoError(t, err)
				assertSameEntries(t, all[1:], got)
			})

			t.Run("empty save deletes", func(t *testing.T) {
				s, path := b.new(t)
				require.NoError(t, s.Save(sampleEntries()))
				require.NoError(t, s.Save(nil))
				assert.NoFileExists(t, path)

				got, err := s.Load()
				require.NoError(t, err)
				assert.Empty(t, got)
			})

			t.Run("delete absent is fine", func(t *testing.T) {
				s, _ := b.new(t)
				assert.NoError(t, s.Delete())
			})
		})
	}
}

func TestFileStoreFormat(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	require.NoError(t, s.Save([]Entry{{
		TempDesktopID: id,
		ProcessName:   nil,
		CreatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}}))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	assert.JSONEq(t,
		`[{"TempDesktopId":"0f8fad5b-d9cb-469f-a165-70867728950e","ProcessName":null,"CreatedAt":"2026-01-02T03:04:05Z"}]`,
		string(data))
	assert.NoFileExists(t, filepath.Join(dir, FileName+".tmp"))
}

func TestFileStoreCorrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte("{not json"), 0644))

	_, err := NewFileStore(dir).Load()
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")

	s, err := Open("", dir)
	require.NoError(t, err)
	assert.IsType(t, &FileStore{}, s)
	assert.DirExists(t, dir)

	s, err = Open(BackendSQLite, dir)
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)

	_, err = Open("redis", dir)
	assert.Error(t, err)
}
