package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const commandTimeout = time.Second * 10

// Service owns account lifecycle, authentication and recovery. All
// mutations of one handle run under the same lock.
type Service struct {
	store     Store
	hasher    PasswordHasher
	codes     RecoveryCodes
	delivery  CodeDelivery
	gate      AdminGate
	provision ProvisionHook
	avatars   AvatarResolver
	activity  ActivitySink
	logger    Logger
	locks     *handleLocks
	now       func() time.Time
}

// NewService returns a Service backed by store with default collaborators
func NewService(store Store) *Service {
	return &Service{
		store:    store,
		hasher:   NewScryptHasher(),
		codes:    NewMemoryRecoveryCodes(),
		delivery: ConsoleCodeDelivery{},
		gate:     RequireAdmin,
		activity: noopActivitySink{},
		logger:   defLogger{},
		locks:    newHandleLocks(),
		now:      time.Now,
	}
}

func (s *Service) WithLogger(logger Logger) *Service {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithPasswordHasher replaces the scrypt hasher
func (s *Service) WithPasswordHasher(hasher PasswordHasher) *Service {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithRecoveryCodes replaces the in-memory code manager, e.g. with a
// redis backed one shared across processes.
func (s *Service) WithRecoveryCodes(codes RecoveryCodes) *Service {
	if codes != nil {
		s.codes = codes
	}
	return s
}

func (s *Service) WithCodeDelivery(delivery CodeDelivery) *Service {
	if delivery != nil {
		s.delivery = delivery
	}
	return s
}

// WithAdminGate replaces RequireAdmin
func (s *Service) WithAdminGate(gate AdminGate) *Service {
	if gate != nil {
		s.gate = gate
	}
	return s
}

// WithProvisionHook runs hook after each successful create
func (s *Service) WithProvisionHook(hook ProvisionHook) *Service {
	s.provision = hook
	return s
}

func (s *Service) WithAvatarResolver(avatars AvatarResolver) *Service {
	s.avatars = avatars
	return s
}

// WithActivitySink configures an ActivitySink for emitting account events.
func (s *Service) WithActivitySink(sink ActivitySink) *Service {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithClock replaces time.Now, used by tests
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// View projects account using the configured avatar resolver
func (s *Service) View(account *Account) AccountView {
	return NewAccountView(account, s.avatars)
}

// Get loads a single account by raw or normalized handle
func (s *Service) Get(ctx context.Context, handle string) (*Account, error) {
	normalized := NormalizeHandle(handle)
	if normalized == "" {
		return nil, ErrAccountNotFound
	}

	account, err := s.store.Get(ctx, normalized)
	if err != nil {
		return nil, storeError(err, "failed to load account")
	}
	return account, nil
}

func (s *Service) authorize(ctx context.Context, caller *Account, action string) error {
	if err := s.gate.Authorize(ctx, caller, action); err != nil {
		s.logger.Warn("admin action refused", "action", action, "error", err)
		return err
	}
	return nil
}

func (s *Service) emit(ctx context.Context, eventType ActivityEventType, actor ActorRef, handle string, meta map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Actor:      actor,
		Handle:     handle,
		Metadata:   meta,
		OccurredAt: s.now().UTC(),
	}

	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink error", "event", eventType, "error", err)
	}
}

// checkContext mirrors the cancellation guard every command runs first
func checkContext(ctx context.Context, operation string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during "+operation,
		)
	default:
		return nil
	}
}

// storeError keeps the not found and conflict sentinels as they are and
// wraps anything else as an internal failure.
func storeError(err error, message string) error {
	if goerrors.Is(err, ErrAccountNotFound) || goerrors.Is(err, ErrAccountExists) {
		return err
	}
	return internalError(err, message)
}
