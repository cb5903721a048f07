package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger is satisfied by *slog.Logger. Arguments after the message are
// key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Store persists account records keyed by their normalized handle.
type Store interface {
	// Get returns ErrAccountNotFound when no record exists for handle.
	Get(ctx context.Context, handle string) (*Account, error)
	// Insert must fail with ErrAccountExists if the handle is taken.
	Insert(ctx context.Context, account *Account) error
	// Save replaces the full record, ErrAccountNotFound if it is missing.
	Save(ctx context.Context, account *Account) error
	// List returns every record ordered by creation time, oldest first.
	List(ctx context.Context) ([]*Account, error)
}

// PasswordHasher salts and hashes passwords
type PasswordHasher interface {
	GenerateSalt() (string, error)
	Hash(password, salt string) (string, error)
}

// RecoveryCodes issues and consumes single use recovery codes
type RecoveryCodes interface {
	// Issue creates a new code for handle, replacing any pending one.
	Issue(ctx context.Context, handle string) (string, error)
	// Consume validates code and invalidates it on success. It returns
	// ErrInvalidRecoveryCode for wrong, expired or missing codes.
	Consume(ctx context.Context, handle, code string) error
}

// CodeDelivery hands a freshly issued recovery code to the account owner.
type CodeDelivery interface {
	DeliverRecoveryCode(ctx context.Context, account *Account, code string) error
}

// ProvisionHook runs after an account has been persisted.
type ProvisionHook interface {
	AccountCreated(ctx context.Context, account *Account) error
}

// AvatarResolver returns the avatar reference shown in account views.
type AvatarResolver interface {
	AvatarFor(handle string) string
}

// AvatarResolverFunc adapts a function to AvatarResolver.
type AvatarResolverFunc func(handle string) string

// AvatarFor implements AvatarResolver.
func (f AvatarResolverFunc) AvatarFor(handle string) string {
	return f(handle)
}

// DefaultAvatar is used when no resolver is configured.
const DefaultAvatar = "img/default-user.png"

// Config holds options used by the HTTP layer and token service
type Config interface {
	GetSigningKey() string
	GetIssuer() string
	GetSessionCookie() string
	GetSessionTTL() time.Duration
	GetSecureCookies() bool
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] ACCOUNTS " + format(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] ACCOUNTS " + format(msg, args...))
}

func format(msg string, args ...any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
		} else {
			fmt.Fprintf(&b, " %v", args[i])
		}
	}
	b.WriteString("\n")
	return b.String()
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// NoopLogger discards every message, handy in tests.
func NoopLogger() Logger {
	return noopLogger{}
}
