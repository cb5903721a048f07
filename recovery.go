package accounts

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultRecoveryCodeTTL is how long an issued code stays valid
	DefaultRecoveryCodeTTL = 5 * time.Minute
	// DefaultRecoveryCodeLength is the number of digits in a code
	DefaultRecoveryCodeLength = 6
	// DefaultRecoveryMaxAttempts wrong guesses invalidate the code
	DefaultRecoveryMaxAttempts = 5
)

// GenerateRecoveryCode returns a numeric code with length digits
func GenerateRecoveryCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultRecoveryCodeLength
	}

	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate recovery code")
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// HashRecoveryCode returns the digest stored in place of the code
func HashRecoveryCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// RecoveryCodesOption configures MemoryRecoveryCodes
type RecoveryCodesOption func(*MemoryRecoveryCodes)

// WithRecoveryTTL overrides DefaultRecoveryCodeTTL
func WithRecoveryTTL(ttl time.Duration) RecoveryCodesOption {
	return func(m *MemoryRecoveryCodes) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithRecoveryCodeLength overrides DefaultRecoveryCodeLength
func WithRecoveryCodeLength(length int) RecoveryCodesOption {
	return func(m *MemoryRecoveryCodes) {
		if length > 0 {
			m.length = length
		}
	}
}

// WithRecoveryMaxAttempts overrides DefaultRecoveryMaxAttempts
func WithRecoveryMaxAttempts(attempts int) RecoveryCodesOption {
	return func(m *MemoryRecoveryCodes) {
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// WithRecoveryClock replaces time.Now
func WithRecoveryClock(now func() time.Time) RecoveryCodesOption {
	return func(m *MemoryRecoveryCodes) {
		if now != nil {
			m.now = now
		}
	}
}

type pendingCode struct {
	digest    [32]byte
	expiresAt time.Time
	attempts  int
}

// MemoryRecoveryCodes keeps pending codes in process memory. Codes do
// not survive a restart.
type MemoryRecoveryCodes struct {
	mu          sync.Mutex
	pending     map[string]*pendingCode
	ttl         time.Duration
	length      int
	maxAttempts int
	now         func() time.Time
}

var _ RecoveryCodes = (*MemoryRecoveryCodes)(nil)

// NewMemoryRecoveryCodes creates an in-memory RecoveryCodes
func NewMemoryRecoveryCodes(opts ...RecoveryCodesOption) *MemoryRecoveryCodes {
	m := &MemoryRecoveryCodes{
		pending:     make(map[string]*pendingCode),
		ttl:         DefaultRecoveryCodeTTL,
		length:      DefaultRecoveryCodeLength,
		maxAttempts: DefaultRecoveryMaxAttempts,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Issue implements RecoveryCodes
func (m *MemoryRecoveryCodes) Issue(_ context.Context, handle string) (string, error) {
	code, err := GenerateRecoveryCode(m.length)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweep()
	m.pending[handle] = &pendingCode{
		digest:    HashRecoveryCode(code),
		expiresAt: m.now().Add(m.ttl),
	}

	return code, nil
}

// Consume implements RecoveryCodes
func (m *MemoryRecoveryCodes) Consume(_ context.Context, handle, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.pending[handle]
	if !ok {
		return ErrInvalidRecoveryCode
	}

	if !m.now().Before(entry.expiresAt) {
		delete(m.pending, handle)
		return ErrInvalidRecoveryCode
	}

	digest := HashRecoveryCode(code)
	if subtle.ConstantTimeCompare(entry.digest[:], digest[:]) != 1 {
		entry.attempts++
		if entry.attempts >= m.maxAttempts {
			delete(m.pending, handle)
		}
		return ErrInvalidRecoveryCode
	}

	delete(m.pending, handle)
	return nil
}

// sweep drops expired entries, callers hold mu
func (m *MemoryRecoveryCodes) sweep() {
	now := m.now()
	for handle, entry := range m.pending {
		if !now.Before(entry.expiresAt) {
			delete(m.pending, handle)
		}
	}
}
