package ctxutil

import (
	"context"
	"time"
)

// private key type so callers cannot collide with ours
type key int

const (
	keyOpName key = iota
	keyActorID
)

// WithOp tags the context with an operation name for logs.
func WithOp(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, keyOpName, name)
}

func Op(ctx context.Context) (string, bool) {
	v := ctx.Value(keyOpName)
	if v == nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// WithActorID carries the acting user's id (the teacher or admin issuing
// the request) through the call chain.
func WithActorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, keyActorID, id)
}

func ActorID(ctx context.Context) (int64, bool) {
	v := ctx.Value(keyActorID)
	if v == nil {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

var DefaultDBTimeout = 5 * time.Second

// WithDBTimeout bounds a DB call, respecting a tighter parent deadline.
func WithDBTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := parent.Deadline(); ok {
		if remain := time.Until(dl); remain < DefaultDBTimeout {
			return context.WithTimeout(parent, remain)
		}
	}
	return context.WithTimeout(parent, DefaultDBTimeout)
}
