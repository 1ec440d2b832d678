package desktop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrayStatus(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		degraded bool
		want     string
	}{
		{"idle", 0, false, "No windows tracked"},
		{"one", 1, false, "1 window(s) on virtual desktops"},
		{"many", 3, false, "3 window(s) on virtual desktops"},
		{"degraded", 2, true, "Virtual desktops unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s trayState
			s.setCount(tt.count)
			s.setDegraded(tt.degraded)
			if got := s.status(); got != tt.want {
				t.Errorf("status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrayTooltip(t *testing.T) {
	var s trayState
	assert.Equal(t, Title+"\n"+usageHint, s.tooltip())

	s.setDegraded(true)
	tip := s.tooltip()
	assert.True(t, strings.HasPrefix(tip, Title))
	assert.Contains(t, tip, "retrying")
	assert.LessOrEqual(t, len(tip), 127)
}

func TestTrayNotice(t *testing.T) {
	var s trayState
	assert.Empty(t, s.lastNotice())
	s.setNotice("Elevated Window", "Cannot maximize")
	assert.Equal(t, "Elevated Window: Cannot maximize", s.lastNotice())
}

func TestMarkFirstRun(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	assert.True(t, markFirstRun(dir))
	_, err := os.Stat(filepath.Join(dir, FirstRunMarker))
	assert.NoError(t, err)

	assert.False(t, markFirstRun(dir))
}
