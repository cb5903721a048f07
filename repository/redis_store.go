package repository

import (
	"context"
	"encoding/json"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	accounts "github.com/goliatone/go-accounts"
)

const accountIndexKey = "index:accounts"

// ZADD runs before SET so a failing index write leaves no record behind.
const insertAccountScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("ZADD", KEYS[2], ARGV[2], ARGV[3])
redis.call("SET", KEYS[1], ARGV[1])
return 1
`

var insertAccountLua = redis.NewScript(insertAccountScript)

// RedisStore keeps one JSON record per handle under prefix + "user:" +
// handle and a sorted set of handles scored by creation time.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ accounts.Store = (*RedisStore)(nil)

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(handle string) string {
	return s.prefix + accounts.AccountKey(handle)
}

func (s *RedisStore) indexKey() string {
	return s.prefix + accountIndexKey
}

func (s *RedisStore) Get(ctx context.Context, handle string) (*accounts.Account, error) {
	raw, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, accounts.ErrAccountNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read account")
	}
	return decodeAccount(raw)
}

func (s *RedisStore) Insert(ctx context.Context, account *accounts.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode account")
	}

	created, err := insertAccountLua.Run(ctx, s.client,
		[]string{s.key(account.Handle), s.indexKey()},
		raw, account.Created.UnixMilli(), account.Handle,
	).Int()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to insert account")
	}
	if created == 0 {
		return accounts.ErrAccountExists
	}

	return nil
}

func (s *RedisStore) Save(ctx context.Context, account *accounts.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode account")
	}

	ok, err := s.client.SetXX(ctx, s.key(account.Handle), raw, redis.KeepTTL).Result()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to save account")
	}
	if !ok {
		return accounts.ErrAccountNotFound
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]*accounts.Account, error) {
	handles, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read account index")
	}
	if len(handles) == 0 {
		return []*accounts.Account{}, nil
	}

	keys := make([]string, len(handles))
	for i, handle := range handles {
		keys[i] = s.key(handle)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read accounts")
	}

	records := make([]*accounts.Account, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			// index entry without a record
			continue
		}
		account, err := decodeAccount([]byte(raw))
		if err != nil {
			return nil, err
		}
		records = append(records, account)
	}

	return records, nil
}

func decodeAccount(raw []byte) (*accounts.Account, error) {
	account := &accounts.Account{}
	if err := json.Unmarshal(raw, account); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode account")
	}
	return account, nil
}
