package accounts

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"io"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/scrypt"
)

const (
	saltLength   = 16
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
)

// ScryptHasher derives password digests with scrypt. The salt is used
// as given (its string bytes), so digests stay stable across restarts.
type ScryptHasher struct {
	N, R, P, KeyLen int
}

// NewScryptHasher returns a hasher with the default cost parameters
func NewScryptHasher() *ScryptHasher {
	return &ScryptHasher{
		N:      scryptN,
		R:      scryptR,
		P:      scryptP,
		KeyLen: scryptKeyLen,
	}
}

// GenerateSalt returns 16 random bytes encoded as base64
func (h *ScryptHasher) GenerateSalt() (string, error) {
	buf := make([]byte, saltLength)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// Hash returns the base64 scrypt digest of password with salt
func (h *ScryptHasher) Hash(password, salt string) (string, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), h.N, h.R, h.P, h.KeyLen)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// VerifyPassword checks candidate against the account credentials.
// Passwordless accounts accept any candidate.
func VerifyPassword(hasher PasswordHasher, account *Account, candidate string) (bool, error) {
	if !account.HasPassword() {
		return true, nil
	}

	digest, err := hasher.Hash(candidate, account.Salt)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare([]byte(digest), []byte(account.PasswordHash)) == 1, nil
}

// setCredentials gives account a fresh salt and, when password is not
// empty, the matching digest. An empty password clears the digest.
func setCredentials(hasher PasswordHasher, account *Account, password string) error {
	salt, err := hasher.GenerateSalt()
	if err != nil {
		return err
	}

	digest := ""
	if password != "" {
		if digest, err = hasher.Hash(password, salt); err != nil {
			return err
		}
	}

	account.Salt = salt
	account.PasswordHash = digest
	return nil
}
