package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	goerrors "github.com/goliatone/go-errors"
)

// EnvPrefix is prepended to every variable name
const EnvPrefix = "ACCOUNTS_"

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds the runtime options of the accounts server. It
// satisfies accounts.Config.
type Config struct {
	Address string `env:"ADDRESS" envDefault:":8000"`
	Debug   bool   `env:"DEBUG"`

	Store string `env:"STORE" envDefault:"sqlite"`
	DSN   string `env:"DSN"   envDefault:"file:accounts.db?cache=shared"`

	RedisAddr     string `env:"REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPrefix   string `env:"REDIS_PREFIX"   envDefault:"accounts:"`

	SigningKey    string        `env:"SIGNING_KEY"`
	Issuer        string        `env:"ISSUER"         envDefault:"accounts"`
	SessionCookie string        `env:"SESSION_COOKIE" envDefault:"accounts.session"`
	SessionTTL    time.Duration `env:"SESSION_TTL"    envDefault:"720h"`
	SecureCookies bool          `env:"SECURE_COOKIES"`

	CSRFStorage    string        `env:"CSRF_STORAGE"    envDefault:"memory"`
	CSRFExpiration time.Duration `env:"CSRF_EXPIRATION" envDefault:"24h"`

	RecoveryCodeTTL      time.Duration `env:"RECOVERY_CODE_TTL"      envDefault:"5m"`
	RecoveryCodeLength   int           `env:"RECOVERY_CODE_LENGTH"   envDefault:"6"`
	RecoveryCodeAttempts int           `env:"RECOVERY_CODE_ATTEMPTS" envDefault:"5"`

	DataRoot   string `env:"DATA_ROOT"   envDefault:"data"`
	SeedDir    string `env:"SEED_DIR"`
	AvatarFile string `env:"AVATAR_FILE" envDefault:"user.png"`

	DefaultHandle   string `env:"DEFAULT_HANDLE"   envDefault:"default-user"`
	DefaultName     string `env:"DEFAULT_NAME"     envDefault:"User"`
	DefaultPassword string `env:"DEFAULT_PASSWORD"`
}

// Load parses the process environment
func Load() (*Config, error) {
	return LoadWithOptions(env.Options{})
}

// LoadWithOptions parses with opts, the prefix is always EnvPrefix
func LoadWithOptions(opts env.Options) (*Config, error) {
	opts.Prefix = EnvPrefix

	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "failed to parse environment")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	err := goerrors.ValidateWithOzzo(func() error {
		return validation.ValidateStruct(c,
			validation.Field(&c.Address, validation.Required),
			validation.Field(&c.Store, validation.Required, validation.In(StoreSQLite, StoreRedis, StoreMemory)),
			validation.Field(&c.DSN, validation.When(c.Store == StoreSQLite, validation.Required)),
			validation.Field(&c.RedisAddr, validation.When(c.Store == StoreRedis || c.CSRFStorage == StoreRedis, validation.Required)),
			validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
			validation.Field(&c.SessionCookie, validation.Required),
			validation.Field(&c.SessionTTL, validation.Min(time.Minute)),
			validation.Field(&c.CSRFStorage, validation.In(StoreMemory, StoreRedis)),
			validation.Field(&c.RecoveryCodeLength, validation.Min(4), validation.Max(12)),
			validation.Field(&c.RecoveryCodeAttempts, validation.Min(1)),
			validation.Field(&c.DefaultHandle, validation.Required),
		)
	}, "invalid configuration")
	if err != nil {
		return err
	}
	return nil
}

func (c *Config) GetSigningKey() string {
	return c.SigningKey
}

func (c *Config) GetIssuer() string {
	return c.Issuer
}

func (c *Config) GetSessionCookie() string {
	return c.SessionCookie
}

func (c *Config) GetSessionTTL() time.Duration {
	return c.SessionTTL
}

func (c *Config) GetSecureCookies() bool {
	return c.SecureCookies
}
