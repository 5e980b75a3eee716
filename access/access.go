// Package access carries the verified admin identity through request
// contexts so administrative repository calls can check it.
package access

import (
	"context"

	"github.com/eringen/pubapi/apperr"
)

// Identity is the caller allowed to perform administrative operations.
type Identity struct {
	Name string
	// Anonymous is set when the admin gate is disabled by configuration.
	Anonymous bool
}

type ctxKey struct{}

// WithAdmin returns a context carrying id.
func WithAdmin(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// AdminFrom returns the identity stored in ctx, if any.
func AdminFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// RequireAdmin fails with a forbidden error unless ctx carries an identity.
func RequireAdmin(ctx context.Context) error {
	if _, ok := AdminFrom(ctx); !ok {
		return apperr.Forbidden("admin access required")
	}
	return nil
}
