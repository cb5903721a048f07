package accounts_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
)

func TestRecoveryFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "alice", "forgotten", false)

	require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "Alice"}))

	code := f.inbox.last("alice")
	require.Len(t, code, accounts.DefaultRecoveryCodeLength)

	account, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{
		Handle:      "alice",
		Code:        code,
		NewPassword: "remembered",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", account.Handle)

	_, err = f.service.Login(ctx, accounts.LoginMessage{Handle: "alice", Password: "forgotten"})
	require.ErrorIs(t, err, accounts.ErrInvalidCredentials)

	_, err = f.service.Login(ctx, accounts.LoginMessage{Handle: "alice", Password: "remembered"})
	require.NoError(t, err)

	before, err := f.store.Get(ctx, "alice")
	require.NoError(t, err)

	_, err = f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{
		Handle:      "alice",
		Code:        code,
		NewPassword: "again",
	})
	require.ErrorIs(t, err, accounts.ErrInvalidRecoveryCode, "codes are single use")

	after, err := f.store.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, before.PasswordHash, after.PasswordHash, "replayed code must not rotate the hash")
	assert.Equal(t, before.Salt, after.Salt, "replayed code must not rotate the salt")

	_, err = f.service.Login(ctx, accounts.LoginMessage{Handle: "alice", Password: "again"})
	require.ErrorIs(t, err, accounts.ErrInvalidCredentials)
	_, err = f.service.Login(ctx, accounts.LoginMessage{Handle: "alice", Password: "remembered"})
	require.NoError(t, err)

	types := f.activity.types()
	assert.Contains(t, types, accounts.ActivityEventRecoveryRequested)
	assert.Contains(t, types, accounts.ActivityEventRecoveryCompleted)
	assert.Contains(t, types, accounts.ActivityEventRecoveryCodeFailed)
}

func TestRecoveryEmptyPasswordClearsCredentials(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "bob", "secret", false)

	require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "bob"}))

	_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{
		Handle: "bob",
		Code:   f.inbox.last("bob"),
	})
	require.NoError(t, err)

	stored, err := f.store.Get(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, stored.HasPassword())
}

func TestRecoveryNewRequestReplacesCode(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "carol", "", false)

	var first string
	for first == "" || first == f.inbox.last("carol") {
		require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "carol"}))
		if first == "" {
			first = f.inbox.last("carol")
		}
	}

	_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "carol", Code: first})
	require.ErrorIs(t, err, accounts.ErrInvalidRecoveryCode)

	_, err = f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "carol", Code: f.inbox.last("carol")})
	require.NoError(t, err)
}

func TestRecoveryCodeExpires(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "dave", "old", false)

	require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "dave"}))
	f.advance(accounts.DefaultRecoveryCodeTTL + time.Second)

	_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{
		Handle:      "dave",
		Code:        f.inbox.last("dave"),
		NewPassword: "new",
	})
	require.ErrorIs(t, err, accounts.ErrInvalidRecoveryCode)

	_, err = f.service.Login(ctx, accounts.LoginMessage{Handle: "dave", Password: "old"})
	require.NoError(t, err, "credentials untouched")
}

func TestRecoveryAttemptCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "erin", "", false)

	require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "erin"}))
	code := f.inbox.last("erin")

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	for i := 0; i < accounts.DefaultRecoveryMaxAttempts; i++ {
		_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "erin", Code: wrong})
		require.ErrorIs(t, err, accounts.ErrInvalidRecoveryCode)
	}

	_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "erin", Code: code})
	require.ErrorIs(t, err, accounts.ErrInvalidRecoveryCode, "code is burned after too many guesses")
}

func TestRequestRecoveryErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "frank", "", false)
	require.NoError(t, f.service.Disable(ctx, adminCaller(), accounts.HandleMessage{Handle: "frank"}))

	err := f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{})
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeMissingFields))

	err = f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "ghost"})
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)

	err = f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "frank"})
	require.ErrorIs(t, err, accounts.ErrAccountDisabled)
	assert.Empty(t, f.inbox.last("frank"))
}

func TestCompleteRecoveryErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "grace", "", false)

	_, err := f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "grace"})
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeMissingFields))

	_, err = f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "ghost", Code: "123456"})
	require.ErrorIs(t, err, accounts.ErrAccountNotFound)

	require.NoError(t, f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "grace"}))
	require.NoError(t, f.service.Disable(ctx, adminCaller(), accounts.HandleMessage{Handle: "grace"}))

	_, err = f.service.CompleteRecovery(ctx, accounts.CompleteRecoveryMessage{Handle: "grace", Code: f.inbox.last("grace")})
	require.ErrorIs(t, err, accounts.ErrAccountDisabled)
}

func TestRecoveryDeliveryFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.create(t, "heidi", "", false)

	f.service.WithCodeDelivery(accounts.CodeDeliveryFunc(func(context.Context, *accounts.Account, string) error {
		return errors.New("smtp down")
	}))

	err := f.service.RequestRecovery(ctx, accounts.RequestRecoveryMessage{Handle: "heidi"})
	require.Error(t, err)
	assert.True(t, goerrors.IsInternal(err))
}

func TestConsoleCodeDelivery(t *testing.T) {
	var out bytes.Buffer
	delivery := accounts.ConsoleCodeDelivery{Out: &out}

	err := delivery.DeliverRecoveryCode(context.Background(), &accounts.Account{Handle: "ivan", Name: "Ivan"}, "424242")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "PASSWORD RECOVERY")
	assert.Contains(t, out.String(), "Ivan (ivan)")
	assert.Contains(t, out.String(), "424242")
}
