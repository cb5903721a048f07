package accounts_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/repository"
)

const testSigningKey = "0123456789abcdef0123456789abcdef"

// MockConfig implements accounts.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSessionCookie() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetSessionTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetSecureCookies() bool {
	args := m.Called()
	return args.Bool(0)
}

func newMockConfig() *MockConfig {
	cfg := new(MockConfig)
	cfg.On("GetSigningKey").Return(testSigningKey)
	cfg.On("GetIssuer").Return("test-issuer")
	cfg.On("GetSessionCookie").Return("accounts.session")
	cfg.On("GetSessionTTL").Return(time.Hour)
	cfg.On("GetSecureCookies").Return(false)
	return cfg
}

// MockStore implements accounts.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Get(ctx context.Context, handle string) (*accounts.Account, error) {
	args := m.Called(ctx, handle)
	if account, ok := args.Get(0).(*accounts.Account); ok {
		return account, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) Insert(ctx context.Context, account *accounts.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockStore) Save(ctx context.Context, account *accounts.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockStore) List(ctx context.Context) ([]*accounts.Account, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]*accounts.Account); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockProvisionHook implements accounts.ProvisionHook
type MockProvisionHook struct {
	mock.Mock
}

func (m *MockProvisionHook) AccountCreated(ctx context.Context, account *accounts.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// codeInbox captures delivered recovery codes per handle
type codeInbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func newCodeInbox() *codeInbox {
	return &codeInbox{codes: make(map[string]string)}
}

func (b *codeInbox) DeliverRecoveryCode(_ context.Context, account *accounts.Account, code string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.codes[account.Handle] = code
	return nil
}

func (b *codeInbox) last(handle string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.codes[handle]
}

// activityRecorder keeps every emitted event
type activityRecorder struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (r *activityRecorder) Record(_ context.Context, event accounts.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *activityRecorder) types() []accounts.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounts.ActivityEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

// fastHasher keeps scrypt but with test friendly cost parameters
func fastHasher() *accounts.ScryptHasher {
	return &accounts.ScryptHasher{N: 16, R: 1, P: 1, KeyLen: 32}
}

type fixture struct {
	store    *repository.MemoryStore
	service  *accounts.Service
	inbox    *codeInbox
	activity *activityRecorder
	codes    *accounts.MemoryRecoveryCodes

	mu  sync.Mutex
	now time.Time
}

func newFixture() *fixture {
	f := &fixture{
		store:    repository.NewMemoryStore(),
		inbox:    newCodeInbox(),
		activity: &activityRecorder{},
		now:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}

	f.codes = accounts.NewMemoryRecoveryCodes(accounts.WithRecoveryClock(f.current))

	f.service = accounts.NewService(f.store).
		WithLogger(accounts.NoopLogger()).
		WithPasswordHasher(fastHasher()).
		WithRecoveryCodes(f.codes).
		WithCodeDelivery(f.inbox).
		WithActivitySink(f.activity).
		WithClock(f.tick)

	return f
}

func (f *fixture) current() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// tick moves the clock on every call so creation order is observable
func (f *fixture) tick() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Millisecond)
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *fixture) create(t require.TestingT, handle, password string, admin bool) *accounts.Account {
	account, err := f.service.Create(context.Background(), adminCaller(), accounts.CreateAccountMessage{
		Handle:   handle,
		Name:     handle,
		Password: password,
		Admin:    admin,
	})
	require.NoError(t, err)
	return account
}

func adminCaller() *accounts.Account {
	return &accounts.Account{Handle: "root", Name: "Root", Admin: true, Enabled: true}
}
