package domain

import "errors"

var (
	// ErrAdapterResolution means no native binding layout passed its smoke test on this OS build
	ErrAdapterResolution = errors.New("no compatible virtual desktop binding for this Windows build")

	// ErrUnsupportedBuild means the OS build is older than the minimum supported build
	ErrUnsupportedBuild = errors.New("unsupported Windows build")

	// ErrNotReady means desktop calls are unavailable until the service is reinitialized
	ErrNotReady = errors.New("virtual desktop service not ready")

	// ErrPrecondition aborts an operation before any state was changed
	ErrPrecondition = errors.New("precondition failed")

	// ErrRelocationFailed means a relocation step failed and was rolled back
	ErrRelocationFailed = errors.New("relocation failed")

	// ErrUnsupportedPlatform is returned by native entry points on non-Windows builds
	ErrUnsupportedPlatform = errors.New("virtual desktops are only supported on Windows")
)
