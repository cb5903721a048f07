package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"

	accounts "github.com/goliatone/go-accounts"
)

// BunStore keeps accounts in the accounts table, keyed by handle
type BunStore struct {
	db   *bun.DB
	repo bunrepo.Repository[*accounts.Account]
}

var _ accounts.Store = (*BunStore)(nil)

func NewBunStore(db *bun.DB) *BunStore {
	// no default pagination: List returns every account
	return &BunStore{
		db:   db,
		repo: bunrepo.NewRepositoryWithConfig(db, accountHandlers(), nil),
	}
}

func accountHandlers() bunrepo.ModelHandlers[*accounts.Account] {
	return bunrepo.ModelHandlers[*accounts.Account]{
		NewRecord: func() *accounts.Account {
			return &accounts.Account{}
		},
		GetID: func(record *accounts.Account) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *accounts.Account, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "handle"
		},
		GetIdentifierValue: func(record *accounts.Account) string {
			return record.Handle
		},
	}
}

// Migrate applies the embedded accounts migrations to db
func Migrate(ctx context.Context, db *bun.DB) error {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(accounts.GetMigrationsFS()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to discover migrations")
	}

	migrator := migrate.NewMigrator(db, migrations)
	if err := migrator.Init(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init migrations")
	}

	if _, err := migrator.Migrate(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to run migrations")
	}

	return nil
}

func (s *BunStore) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}

func (s *BunStore) Get(ctx context.Context, handle string) (*accounts.Account, error) {
	account, err := s.repo.GetByIdentifier(ctx, handle)
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to select account")
	}
	return account, nil
}

func (s *BunStore) Insert(ctx context.Context, account *accounts.Account) error {
	if _, err := s.repo.Create(ctx, account); err != nil {
		if isUniqueViolation(err) {
			return accounts.ErrAccountExists
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert account")
	}
	return nil
}

func (s *BunStore) Save(ctx context.Context, account *accounts.Account) error {
	return s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := s.repo.UpdateTx(ctx, tx, account); err != nil {
			if bunrepo.IsSQLExpectedCountViolation(err) || bunrepo.IsRecordNotFound(err) {
				return accounts.ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to update account")
		}
		return nil
	})
}

func (s *BunStore) List(ctx context.Context) ([]*accounts.Account, error) {
	records, _, err := s.repo.List(ctx, bunrepo.OrderBy("created_at ASC", "handle ASC"))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list accounts")
	}
	return records, nil
}

// isUniqueViolation matches the mapped duplicate category and, for drivers
// the mapper does not know, the raw driver message.
func isUniqueViolation(err error) bool {
	if bunrepo.IsDuplicatedKey(err) {
		return true
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		if strings.Contains(msg, "unique constraint") ||
			strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "constraint failed") {
			return true
		}
	}
	return false
}
