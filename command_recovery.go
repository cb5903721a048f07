package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type RequestRecoveryMessage struct {
	Handle string `json:"handle"`
}

func (m RequestRecoveryMessage) Type() string { return "auth.recovery.request" }

func (m RequestRecoveryMessage) Validate() error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Handle, validation.Required),
		)
	}, ErrMissingFields.Message))
}

// RequestRecovery issues a one time code for an enabled account and
// hands it to the configured delivery. A new request replaces any
// pending code.
func (s *Service) RequestRecovery(ctx context.Context, msg RequestRecoveryMessage) error {
	if err := checkContext(ctx, "recovery request"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return err
	}

	handle := NormalizeHandle(msg.Handle)
	if handle == "" {
		return ErrAccountNotFound
	}

	account, err := s.store.Get(ctx, handle)
	if err != nil {
		return storeError(err, "failed to load account")
	}

	if !account.Enabled {
		s.logger.Warn("recovery requested for disabled account", "handle", handle)
		return ErrAccountDisabled
	}

	code, err := s.codes.Issue(ctx, handle)
	if err != nil {
		return internalError(err, "failed to issue recovery code")
	}

	if err := s.delivery.DeliverRecoveryCode(ctx, account, code); err != nil {
		s.logger.Error("recovery code delivery failed", "handle", handle, "error", err)
		return internalError(err, "failed to deliver recovery code")
	}

	s.logger.Info("recovery code issued", "handle", handle)
	s.emit(ctx, ActivityEventRecoveryRequested, ActorRef{Type: actorTypeAnonymous}, handle, nil)

	return nil
}

type CompleteRecoveryMessage struct {
	Handle      string `json:"handle"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

func (m CompleteRecoveryMessage) Type() string { return "auth.recovery.complete" }

func (m CompleteRecoveryMessage) Validate() error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Handle, validation.Required),
			validation.Field(&m.Code, validation.Required),
		)
	}, ErrMissingFields.Message))
}

// CompleteRecovery consumes code and stores the new credentials. The
// returned account is logged in with the new password.
func (s *Service) CompleteRecovery(ctx context.Context, msg CompleteRecoveryMessage) (*Account, error) {
	if err := checkContext(ctx, "recovery completion"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	handle := NormalizeHandle(msg.Handle)
	if handle == "" {
		return nil, ErrAccountNotFound
	}

	if err := s.resetCredentials(ctx, handle, msg); err != nil {
		return nil, err
	}

	s.logger.Info("recovery completed", "handle", handle)
	s.emit(ctx, ActivityEventRecoveryCompleted, ActorRef{Type: actorTypeAnonymous}, handle, nil)

	return s.Login(ctx, LoginMessage{Handle: handle, Password: msg.NewPassword})
}

func (s *Service) resetCredentials(ctx context.Context, handle string, msg CompleteRecoveryMessage) error {
	unlock := s.locks.Lock(handle)
	defer unlock()

	account, err := s.store.Get(ctx, handle)
	if err != nil {
		return storeError(err, "failed to load account")
	}

	if !account.Enabled {
		return ErrAccountDisabled
	}

	if err := s.codes.Consume(ctx, handle, msg.Code); err != nil {
		if goerrors.Is(err, ErrInvalidRecoveryCode) {
			s.logger.Warn("recovery code rejected", "handle", handle)
			s.emit(ctx, ActivityEventRecoveryCodeFailed, ActorRef{Type: actorTypeAnonymous}, handle, nil)
			return err
		}
		return internalError(err, "failed to consume recovery code")
	}

	if err := setCredentials(s.hasher, account, msg.NewPassword); err != nil {
		return internalError(err, "failed to set account credentials")
	}
	account.touch(s.now().UTC())

	if err := s.store.Save(ctx, account); err != nil {
		return storeError(err, "failed to save account")
	}

	return nil
}
