package accounts

import (
	"context"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// HandleMessage targets a single account
type HandleMessage struct {
	Handle string `json:"handle"`
}

func (m HandleMessage) Type() string { return "account.handle" }

func (m HandleMessage) Validate() error {
	return validationError(goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(&m,
			validation.Field(&m.Handle, validation.Required),
		)
	}, ErrMissingFields.Message))
}

type statusChange struct {
	action    string
	operation string
	event     ActivityEventType
	selfErr   error
	apply     func(account *Account) bool
}

var (
	enableChange = statusChange{
		action:    ActionEnable,
		operation: "account enable",
		event:     ActivityEventAccountEnabled,
		apply:     func(a *Account) bool { changed := !a.Enabled; a.Enabled = true; return changed },
	}
	disableChange = statusChange{
		action:    ActionDisable,
		operation: "account disable",
		event:     ActivityEventAccountDisabled,
		selfErr:   ErrCannotDisableSelf,
		apply:     func(a *Account) bool { changed := a.Enabled; a.Enabled = false; return changed },
	}
	promoteChange = statusChange{
		action:    ActionPromote,
		operation: "account promote",
		event:     ActivityEventAccountPromoted,
		apply:     func(a *Account) bool { changed := !a.Admin; a.Admin = true; return changed },
	}
	demoteChange = statusChange{
		action:    ActionDemote,
		operation: "account demote",
		event:     ActivityEventAccountDemoted,
		selfErr:   ErrCannotDemoteSelf,
		apply:     func(a *Account) bool { changed := a.Admin; a.Admin = false; return changed },
	}
)

// Enable lets the account log in again
func (s *Service) Enable(ctx context.Context, caller *Account, msg HandleMessage) error {
	return s.changeStatus(ctx, caller, msg, enableChange)
}

// Disable blocks logins for the account. Callers can not disable
// themselves.
func (s *Service) Disable(ctx context.Context, caller *Account, msg HandleMessage) error {
	return s.changeStatus(ctx, caller, msg, disableChange)
}

// Promote grants admin rights
func (s *Service) Promote(ctx context.Context, caller *Account, msg HandleMessage) error {
	return s.changeStatus(ctx, caller, msg, promoteChange)
}

// Demote revokes admin rights. Callers can not demote themselves.
func (s *Service) Demote(ctx context.Context, caller *Account, msg HandleMessage) error {
	return s.changeStatus(ctx, caller, msg, demoteChange)
}

func (s *Service) changeStatus(ctx context.Context, caller *Account, msg HandleMessage, change statusChange) error {
	if err := checkContext(ctx, change.operation); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := s.authorize(ctx, caller, change.action); err != nil {
		return err
	}

	if err := msg.Validate(); err != nil {
		return err
	}

	handle := NormalizeHandle(msg.Handle)
	if handle == "" {
		return ErrAccountNotFound
	}

	if change.selfErr != nil && caller != nil && caller.Handle == handle {
		return change.selfErr
	}

	unlock := s.locks.Lock(handle)
	defer unlock()

	account, err := s.store.Get(ctx, handle)
	if err != nil {
		return storeError(err, "failed to load account")
	}

	if !change.apply(account) {
		s.logger.Debug("account status unchanged", "handle", handle, "action", change.action)
		return nil
	}

	account.touch(s.now().UTC())

	if err := s.store.Save(ctx, account); err != nil {
		return storeError(err, "failed to save account")
	}

	s.logger.Info("account status changed", "handle", handle, "action", change.action)
	s.emit(ctx, change.event, actorFor(caller), handle, nil)

	return nil
}

// List returns every account, oldest first
func (s *Service) List(ctx context.Context, caller *Account) ([]AccountView, error) {
	if err := checkContext(ctx, "account listing"); err != nil {
		return nil, err
	}

	if err := s.authorize(ctx, caller, ActionList); err != nil {
		return nil, err
	}

	return s.listViews(ctx, func(*Account) bool { return true })
}

// ListPublic returns the enabled accounts shown on the login screen
func (s *Service) ListPublic(ctx context.Context) ([]AccountView, error) {
	if err := checkContext(ctx, "public account listing"); err != nil {
		return nil, err
	}

	return s.listViews(ctx, func(a *Account) bool { return a.Enabled })
}

func (s *Service) listViews(ctx context.Context, keep func(*Account) bool) ([]AccountView, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	records, err := s.store.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list accounts")
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Created.Before(records[j].Created)
	})

	views := make([]AccountView, 0, len(records))
	for _, record := range records {
		if keep(record) {
			views = append(views, s.View(record))
		}
	}

	return views, nil
}
