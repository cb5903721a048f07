package accounts

import "context"

// Admin actions checked by an AdminGate
const (
	ActionList    = "accounts:list"
	ActionCreate  = "accounts:create"
	ActionEnable  = "accounts:enable"
	ActionDisable = "accounts:disable"
	ActionPromote = "accounts:promote"
	ActionDemote  = "accounts:demote"
)

// AdminGate decides whether caller may run an administrative action.
// It runs before the action touches the store.
type AdminGate interface {
	Authorize(ctx context.Context, caller *Account, action string) error
}

// AdminGateFunc adapts a function to AdminGate
type AdminGateFunc func(ctx context.Context, caller *Account, action string) error

// Authorize implements AdminGate
func (f AdminGateFunc) Authorize(ctx context.Context, caller *Account, action string) error {
	return f(ctx, caller, action)
}

// RequireAdmin allows enabled admin accounts only
var RequireAdmin AdminGate = AdminGateFunc(func(_ context.Context, caller *Account, _ string) error {
	if caller == nil {
		return ErrUnauthenticated
	}
	if !caller.Enabled || !caller.Admin {
		return ErrAdminRequired
	}
	return nil
})
