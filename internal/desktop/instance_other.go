//go:build !windows

package desktop

import "errors"

// ErrAlreadyRunning is returned when another instance owns the session
var ErrAlreadyRunning = errors.New("another instance is already running")

// AcquireInstance 非 Windows 平台的空实现
func AcquireInstance() (func(), error) {
	return func() {}, nil
}
