package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// KeyPrefix namespaces account records in key/value backends
const KeyPrefix = "user:"

// DefaultName is used when an account is created without a display name
const DefaultName = "Anonymous"

// AccountKey returns the storage key for a normalized handle
func AccountKey(handle string) string {
	return KeyPrefix + handle
}

// Account is the persisted account record
type Account struct {
	bun.BaseModel `bun:"table:accounts,alias:acc" json:"-"`
	Handle        string     `bun:"handle,pk" json:"handle"`
	ID            uuid.UUID  `bun:"id,notnull,unique,type:uuid" json:"uuid"`
	Name          string     `bun:"name,notnull" json:"name"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"password"`
	Salt          string     `bun:"salt,notnull" json:"salt"`
	Admin         bool       `bun:"is_admin,notnull" json:"admin"`
	Enabled       bool       `bun:"is_enabled,notnull" json:"enabled"`
	Created       time.Time  `bun:"created_at,notnull" json:"created"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// HasPassword reports whether the account requires a password to log in
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// Clone returns a copy safe to mutate without touching the original
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		c.UpdatedAt = &t
	}
	return &c
}

func (a *Account) touch(now time.Time) {
	a.UpdatedAt = &now
}

// AccountView is the public projection of an account. It never carries
// credential material, only whether a password is set.
type AccountView struct {
	Handle   string `json:"handle"`
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Admin    bool   `json:"admin"`
	Enabled  bool   `json:"enabled"`
	Created  int64  `json:"created"`
	Password bool   `json:"password"`
}

// NewAccountView projects account into its public view
func NewAccountView(account *Account, avatars AvatarResolver) AccountView {
	avatar := DefaultAvatar
	if avatars != nil {
		if a := avatars.AvatarFor(account.Handle); a != "" {
			avatar = a
		}
	}

	return AccountView{
		Handle:   account.Handle,
		Name:     account.Name,
		Avatar:   avatar,
		Admin:    account.Admin,
		Enabled:  account.Enabled,
		Created:  account.Created.UnixMilli(),
		Password: account.HasPassword(),
	}
}
