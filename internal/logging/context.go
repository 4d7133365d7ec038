package logging

import (
	"context"
	"time"
)

// DetachContext returns a context that is not cancelled with parent but keeps
// its values.
func DetachContext(parent context.Context) context.Context {
	return context.WithoutCancel(parent)
}

// DetachContextWithTimeout detaches from parent and applies its own deadline.
// Writes that must finish after the request ends, such as persisting a
// refreshed OAuth token, run under it:
//
//	ctx, cancel := logging.DetachContextWithTimeout(reqCtx, 5*time.Second)
//	defer cancel()
//	err := store.SaveToken(ctx, row)
func DetachContextWithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
