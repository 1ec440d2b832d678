//go:build !windows

package desktop

import (
	"context"
	"time"
)

// RunInput waits for ctx; there is no global input to hook here
func RunInput(ctx context.Context, handler InputHandler, probeTimeout time.Duration) error {
	<-ctx.Done()
	return nil
}
