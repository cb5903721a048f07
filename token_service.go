package accounts

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// SessionClaims identify the logged in account. The subject is the
// normalized handle.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID string `json:"aid,omitempty"`
}

// Handle returns the account handle carried by the token
func (c *SessionClaims) Handle() string {
	return c.Subject
}

// TokenService signs and validates session tokens
type TokenService struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
	logger     Logger
	now        func() time.Time
}

// NewTokenService creates a TokenService from cfg
func NewTokenService(cfg Config, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		signingKey: []byte(cfg.GetSigningKey()),
		issuer:     cfg.GetIssuer(),
		ttl:        cfg.GetSessionTTL(),
		logger:     logger,
		now:        time.Now,
	}
}

// TTL is the lifetime of issued tokens
func (ts *TokenService) TTL() time.Duration {
	return ts.ttl
}

// Issue signs a session token for account
func (ts *TokenService) Issue(account *Account) (string, error) {
	if account == nil {
		return "", goerrors.New("account must not be nil", goerrors.CategoryInternal)
	}

	now := ts.now()
	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ts.issuer,
			Subject:   account.Handle,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		AccountID: account.ID.String(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	return signed, nil
}

// Validate implements jwtware.TokenValidator
func (ts *TokenService) Validate(tokenString string) (jwt.Claims, error) {
	claims, err := ts.Parse(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// Parse validates tokenString and returns its claims
func (ts *TokenService) Parse(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Error("session token with unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		ts.logger.Debug("session token rejected", "error", err)
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidSession
	}

	return claims, nil
}
