package upstream

import (
	"context"
	"time"
)

// sharedTimeout bounds a shared fetch whose first caller had no deadline.
const sharedTimeout = 60 * time.Second

// Shared derives the context for a fetch several callers wait on. It drops
// the first caller's cancellation, so that caller disconnecting does not fail
// the others, and keeps its deadline.
func Shared(ctx context.Context) (context.Context, context.CancelFunc) {
	base := context.WithoutCancel(ctx)
	if dl, ok := ctx.Deadline(); ok {
		return context.WithDeadline(base, dl)
	}
	return context.WithTimeout(base, sharedTimeout)
}
