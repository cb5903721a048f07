package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

type LoginMessage struct {
	Handle   string `json:"handle"`
	Password string `json:"password"`
}

func (m LoginMessage) Type() string { return "auth.login" }

// Validate only requires the handle, passwordless accounts send no
// password at all.
func (m LoginMessage) Validate() error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Handle, validation.Required),
		)
	}, ErrMissingFields.Message))
}

// Login checks msg against the stored credentials. Unknown handles,
// disabled accounts and wrong passwords all fail with
// ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, msg LoginMessage) (*Account, error) {
	if err := checkContext(ctx, "login"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := msg.Validate(); err != nil {
		return nil, err
	}

	handle := NormalizeHandle(msg.Handle)

	account, reason, err := s.verifyLogin(ctx, handle, msg.Password)
	if err != nil {
		s.logger.Error("login failed", "handle", handle, "error", err)
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: actorTypeAnonymous}, handle, map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	if reason != "" {
		s.logger.Warn("login refused", "handle", handle, "reason", reason)
		s.emit(ctx, ActivityEventLoginFailure, ActorRef{Type: actorTypeAnonymous}, handle, map[string]any{
			"reason": reason,
		})
		return nil, ErrInvalidCredentials
	}

	s.logger.Info("login succeeded", "handle", handle)
	s.emit(ctx, ActivityEventLoginSuccess, actorFor(account), handle, nil)

	return account, nil
}

// verifyLogin returns a non empty reason when credentials are refused
// and an error only for unexpected failures.
func (s *Service) verifyLogin(ctx context.Context, handle, password string) (*Account, string, error) {
	if handle == "" {
		return nil, "invalid handle", nil
	}

	account, err := s.store.Get(ctx, handle)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return nil, "unknown handle", nil
		}
		return nil, "", internalError(err, "failed to load account")
	}

	if !account.Enabled {
		return nil, "account disabled", nil
	}

	ok, err := VerifyPassword(s.hasher, account, password)
	if err != nil {
		return nil, "", internalError(err, "failed to verify password")
	}

	if !ok {
		return nil, "wrong password", nil
	}

	return account, "", nil
}

type ChangePasswordMessage struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (m ChangePasswordMessage) Type() string { return "auth.password.change" }

// ChangePassword replaces the caller credentials. The current password
// is required when one is set. An empty new password makes the account
// passwordless.
func (s *Service) ChangePassword(ctx context.Context, caller *Account, msg ChangePasswordMessage) error {
	if err := checkContext(ctx, "password change"); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if caller == nil {
		return ErrUnauthenticated
	}

	unlock := s.locks.Lock(caller.Handle)
	defer unlock()

	account, err := s.store.Get(ctx, caller.Handle)
	if err != nil {
		if goerrors.Is(err, ErrAccountNotFound) {
			return ErrUnauthenticated
		}
		return internalError(err, "failed to load account")
	}

	if !account.Enabled {
		return ErrInvalidCredentials
	}

	ok, err := VerifyPassword(s.hasher, account, msg.OldPassword)
	if err != nil {
		return internalError(err, "failed to verify password")
	}
	if !ok {
		s.logger.Warn("password change refused", "handle", account.Handle)
		return ErrInvalidCredentials
	}

	if err := setCredentials(s.hasher, account, msg.NewPassword); err != nil {
		return internalError(err, "failed to set account credentials")
	}
	account.touch(s.now().UTC())

	if err := s.store.Save(ctx, account); err != nil {
		return storeError(err, "failed to save account")
	}

	s.logger.Info("password changed", "handle", account.Handle)
	s.emit(ctx, ActivityEventPasswordChanged, actorFor(caller), account.Handle, map[string]any{
		"password": account.HasPassword(),
	})

	return nil
}
