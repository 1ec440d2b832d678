//go:build windows

package desktop

import (
	"errors"
	"fmt"
	"log"

	"golang.org/x/sys/windows"
)

// instanceMutex 每个登录会话只允许一个实例
const instanceMutex = `Local\MaxDesk.Instance`

// ErrAlreadyRunning is returned when another instance owns the session
var ErrAlreadyRunning = errors.New("another instance is already running")

// AcquireInstance 获取单实例锁, 返回释放函数
func AcquireInstance() (func(), error) {
	name, err := windows.UTF16PtrFromString(instanceMutex)
	if err != nil {
		return nil, err
	}
	h, err := windows.CreateMutex(nil, false, name)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if h != 0 {
			windows.CloseHandle(h)
		}
		return nil, ErrAlreadyRunning
	}
	if err != nil {
		return nil, fmt.Errorf("create instance mutex: %w", err)
	}
	log.Printf("[Instance] Acquired %s", instanceMutex)
	return func() { windows.CloseHandle(h) }, nil
}
