package accounts

import (
	"context"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type CreateAccountMessage struct {
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Admin    bool   `json:"admin"`
}

func (m CreateAccountMessage) Type() string { return "account.create" }

// Validate requires both handle and name
func (m CreateAccountMessage) Validate() error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Handle, validation.Required),
			validation.Field(&m.Name, validation.Required),
		)
	}, ErrMissingFields.Message))
}

// Create validates msg, persists a new enabled account and runs the
// provisioning hook. A failing hook is logged and the account is kept.
func (s *Service) Create(ctx context.Context, caller *Account, msg CreateAccountMessage) (*Account, error) {
	if err := checkContext(ctx, "account creation"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := s.authorize(ctx, caller, ActionCreate); err != nil {
		return nil, err
	}

	account, err := s.createAccount(ctx, msg)
	if err != nil {
		s.logger.Warn("account create failed", "handle", msg.Handle, "error", err)
		return nil, err
	}

	s.logger.Info("account created", "handle", account.Handle, "admin", account.Admin)
	s.emit(ctx, ActivityEventAccountCreated, actorFor(caller), account.Handle, map[string]any{
		"admin":    account.Admin,
		"password": account.HasPassword(),
	})

	s.runProvision(ctx, account)

	return account, nil
}

func (s *Service) createAccount(ctx context.Context, msg CreateAccountMessage) (*Account, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	handle := NormalizeHandle(msg.Handle)
	if handle == "" {
		return nil, ErrInvalidHandle
	}

	unlock := s.locks.Lock(handle)
	defer unlock()

	if _, err := s.store.Get(ctx, handle); err == nil {
		return nil, ErrAccountExists
	} else if !goerrors.Is(err, ErrAccountNotFound) {
		return nil, internalError(err, "failed to check existing account")
	}

	account := &Account{
		ID:      uuid.New(),
		Handle:  handle,
		Name:    msg.Name,
		Admin:   msg.Admin,
		Enabled: true,
		Created: s.now().UTC(),
	}

	if err := setCredentials(s.hasher, account, msg.Password); err != nil {
		return nil, internalError(err, "failed to set account credentials")
	}

	if err := s.store.Insert(ctx, account); err != nil {
		return nil, storeError(err, "failed to create account")
	}

	return account, nil
}

func (s *Service) runProvision(ctx context.Context, account *Account) {
	if s.provision == nil {
		return
	}

	if err := s.provision.AccountCreated(ctx, account); err != nil {
		s.logger.Error("account provisioning failed", "handle", account.Handle, "error", err)
		s.emit(ctx, ActivityEventProvisionFailure, ActorRef{Type: actorTypeSystem}, account.Handle, map[string]any{
			"error": err.Error(),
		})
	}
}

// EnsureDefaultAccount creates the bootstrap admin when the store holds
// no accounts at all. It returns nil, nil when accounts already exist.
func (s *Service) EnsureDefaultAccount(ctx context.Context, msg CreateAccountMessage) (*Account, error) {
	if err := checkContext(ctx, "default account bootstrap"); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	existing, err := s.store.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list accounts")
	}

	if len(existing) > 0 {
		return nil, nil
	}

	if msg.Name == "" {
		msg.Name = DefaultName
	}
	msg.Admin = true

	account, err := s.createAccount(ctx, msg)
	if err != nil {
		if goerrors.Is(err, ErrAccountExists) {
			return nil, nil
		}
		return nil, err
	}

	s.logger.Info("default account created", "handle", account.Handle)
	s.emit(ctx, ActivityEventAccountCreated, ActorRef{Type: actorTypeSystem}, account.Handle, map[string]any{
		"admin":     true,
		"bootstrap": true,
	})

	s.runProvision(ctx, account)

	return account, nil
}

// validationError tags a failed ozzo validation with the missing fields
// code and a bad request status.
func validationError(err *goerrors.Error) error {
	if err == nil {
		return nil
	}
	return err.WithTextCode(TextCodeMissingFields).WithCode(goerrors.CodeBadRequest)
}
