package accounts

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventAccountCreated     ActivityEventType = "account.created"
	ActivityEventAccountEnabled     ActivityEventType = "account.enabled"
	ActivityEventAccountDisabled    ActivityEventType = "account.disabled"
	ActivityEventAccountPromoted    ActivityEventType = "account.promoted"
	ActivityEventAccountDemoted     ActivityEventType = "account.demoted"
	ActivityEventProvisionFailure   ActivityEventType = "account.provision.failure"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventPasswordChanged    ActivityEventType = "auth.password.changed"
	ActivityEventRecoveryRequested  ActivityEventType = "auth.recovery.requested"
	ActivityEventRecoveryCompleted  ActivityEventType = "auth.recovery.completed"
	ActivityEventRecoveryCodeFailed ActivityEventType = "auth.recovery.failure"
)

// ActorRef identifies who triggered an action.
type ActorRef struct {
	Handle string
	Type   string
}

const (
	actorTypeAccount   = "account"
	actorTypeAnonymous = "anonymous"
	actorTypeSystem    = "system"
)

func actorFor(caller *Account) ActorRef {
	if caller == nil {
		return ActorRef{Type: actorTypeAnonymous}
	}
	return ActorRef{Handle: caller.Handle, Type: actorTypeAccount}
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	Handle     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
