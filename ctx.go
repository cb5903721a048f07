package accounts

import (
	"context"
)

var callerCtxKey = &contextKey{"caller"}

type contextKey struct {
	name string
}

// WithCaller stores the authenticated account in ctx
func WithCaller(ctx context.Context, caller *Account) context.Context {
	return context.WithValue(ctx, callerCtxKey, caller)
}

// CallerFromContext returns the authenticated account, if any
func CallerFromContext(ctx context.Context) (*Account, bool) {
	raw, ok := ctx.Value(callerCtxKey).(*Account)
	return raw, ok && raw != nil
}
