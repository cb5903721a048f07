package accounts_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestCreateAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("normalizes handle and stores credentials", func(t *testing.T) {
		f := newFixture()

		account, err := f.service.Create(ctx, adminCaller(), accounts.CreateAccountMessage{
			Handle:   "  Alice Smith ",
			Name:     "Alice",
			Password: "secret",
		})
		require.NoError(t, err)

		assert.Equal(t, "alice-smith", account.Handle)
		assert.Equal(t, "Alice", account.Name)
		assert.True(t, account.Enabled)
		assert.False(t, account.Admin)
		assert.NotEmpty(t, account.Salt)
		assert.NotEmpty(t, account.PasswordHash)
		assert.NotEqual(t, "secret", account.PasswordHash)

		stored, err := f.store.Get(ctx, "alice-smith")
		require.NoError(t, err)
		assert.Equal(t, account.ID, stored.ID)
		assert.Contains(t, f.activity.types(), accounts.ActivityEventAccountCreated)
	})

	t.Run("passwordless account keeps a salt", func(t *testing.T) {
		f := newFixture()
		account := f.create(t, "bob", "", false)

		assert.False(t, account.HasPassword())
		assert.NotEmpty(t, account.Salt)
	})

	t.Run("missing fields", func(t *testing.T) {
		f := newFixture()

		for _, msg := range []accounts.CreateAccountMessage{
			{Name: "No Handle"},
			{Handle: "nobody"},
			{},
		} {
			_, err := f.service.Create(ctx, adminCaller(), msg)
			require.Error(t, err)
			assert.True(t, goerrors.IsValidation(err))
			assert.True(t, accounts.HasTextCode(err, accounts.TextCodeMissingFields))
		}

		records, err := f.store.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("handle that normalizes to nothing", func(t *testing.T) {
		f := newFixture()

		_, err := f.service.Create(ctx, adminCaller(), accounts.CreateAccountMessage{Handle: "!!!", Name: "Bang"})
		require.ErrorIs(t, err, accounts.ErrInvalidHandle)
	})

	t.Run("duplicate after normalization", func(t *testing.T) {
		f := newFixture()
		f.create(t, "carol", "", false)

		_, err := f.service.Create(ctx, adminCaller(), accounts.CreateAccountMessage{Handle: " CAROL ", Name: "Other"})
		require.ErrorIs(t, err, accounts.ErrAccountExists)
	})

	t.Run("requires an admin caller", func(t *testing.T) {
		f := newFixture()
		msg := accounts.CreateAccountMessage{Handle: "dave", Name: "Dave"}

		_, err := f.service.Create(ctx, nil, msg)
		require.ErrorIs(t, err, accounts.ErrUnauthenticated)

		_, err = f.service.Create(ctx, &accounts.Account{Handle: "eve", Enabled: true}, msg)
		require.ErrorIs(t, err, accounts.ErrAdminRequired)

		_, err = f.store.Get(ctx, "dave")
		require.ErrorIs(t, err, accounts.ErrAccountNotFound)
	})

	t.Run("cancelled context", func(t *testing.T) {
		f := newFixture()
		cancelled, cancel := context.WithCancel(ctx)
		cancel()

		_, err := f.service.Create(cancelled, adminCaller(), accounts.CreateAccountMessage{Handle: "x", Name: "x"})
		require.Error(t, err)
		assert.True(t, goerrors.IsCategory(err, goerrors.CategoryOperation))
	})
}

func TestCreateAccountConcurrentSameHandle(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	const workers = 10
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.service.Create(ctx, adminCaller(), accounts.CreateAccountMessage{
				Handle: "Same Handle",
				Name:   "Racer",
			})
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		require.ErrorIs(t, err, accounts.ErrAccountExists)
	}
	assert.Equal(t, 1, created)

	records, err := f.store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCreateAccountProvisioning(t *testing.T) {
	ctx := context.Background()

	t.Run("hook runs after insert", func(t *testing.T) {
		f := newFixture()
		hook := new(MockProvisionHook)
		hook.On("AccountCreated", mock.Anything, mock.MatchedBy(func(a *accounts.Account) bool {
			return a.Handle == "frank"
		})).Return(nil).Once()
		f.service.WithProvisionHook(hook)

		f.create(t, "frank", "", false)
		hook.AssertExpectations(t)
	})

	t.Run("hook failure keeps the account", func(t *testing.T) {
		f := newFixture()
		hook := new(MockProvisionHook)
		hook.On("AccountCreated", mock.Anything, mock.Anything).Return(errors.New("disk full")).Once()
		f.service.WithProvisionHook(hook)

		account := f.create(t, "grace", "", false)

		_, err := f.store.Get(ctx, account.Handle)
		require.NoError(t, err)
		assert.Contains(t, f.activity.types(), accounts.ActivityEventProvisionFailure)
	})
}

func TestCreateAccountStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := new(MockStore)
	store.On("Get", mock.Anything, "heidi").Return(nil, accounts.ErrAccountNotFound)
	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	service := accounts.NewService(store).
		WithLogger(accounts.NoopLogger()).
		WithPasswordHasher(fastHasher())

	_, err := service.Create(ctx, adminCaller(), accounts.CreateAccountMessage{Handle: "heidi", Name: "Heidi"})
	require.Error(t, err)
	assert.True(t, goerrors.IsInternal(err))
	store.AssertExpectations(t)
}

func TestEnsureDefaultAccount(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	account, err := f.service.EnsureDefaultAccount(ctx, accounts.CreateAccountMessage{Handle: "default-user"})
	require.NoError(t, err)
	require.NotNil(t, account)
	assert.True(t, account.Admin)
	assert.Equal(t, accounts.DefaultName, account.Name)
	assert.False(t, account.HasPassword())

	again, err := f.service.EnsureDefaultAccount(ctx, accounts.CreateAccountMessage{Handle: "default-user"})
	require.NoError(t, err)
	assert.Nil(t, again)
}
