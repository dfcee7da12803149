package utils

import (
	"context"
	"time"
)

// CtxLoop blocks and fires the callback function on a tick until the
// context is canceled.
func CtxLoop(ctx context.Context, delay time.Duration, fn func()) {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
