package version

// Name is the program name used in logs and -version output
const Name = "maxdesk"

// These variables are set at build time via -ldflags
var (
	// Version is the semantic version (e.g., "1.0.0")
	Version = "dev"
	// Commit is the git commit hash
	Commit = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// ShortCommit returns the first seven characters of the commit hash
func ShortCommit() string {
	if len(Commit) > 7 {
		return Commit[:7]
	}
	return Commit
}

// Info returns the one-line version used in the startup log
func Info() string {
	return Name + " " + Version + " (" + ShortCommit() + ")"
}

// Full returns full version information including build time
func Full() string {
	return Name + " " + Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}
