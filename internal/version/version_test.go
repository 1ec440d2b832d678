package version

import "testing"

func TestInfo(t *testing.T) {
	defer func(v, c, b string) { Version, Commit, BuildTime = v, c, b }(Version, Commit, BuildTime)

	Version, Commit, BuildTime = "1.2.0", "0123456789abcdef", "2026-10-01T00:00:00Z"
	if got, want := Info(), "maxdesk 1.2.0 (0123456)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
	if got, want := Full(), "maxdesk 1.2.0 (commit: 0123456789abcdef, built: 2026-10-01T00:00:00Z)"; got != want {
		t.Errorf("Full() = %q, want %q", got, want)
	}

	Commit = "abc"
	if got := ShortCommit(); got != "abc" {
		t.Errorf("ShortCommit() = %q, want %q", got, "abc")
	}
}
