package repository

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	accounts "github.com/goliatone/go-accounts"
)

const (
	recoveryKeyPrefix  = "recovery:"
	recoveryMaxRetries = 5
	fieldDigest        = "digest"
	fieldAttempts      = "attempts"
)

// RedisRecoveryCodes shares pending recovery codes between processes.
// Each handle maps to a hash holding the code digest and the number of
// wrong attempts, expiring with the code.
type RedisRecoveryCodes struct {
	client      redis.UniversalClient
	prefix      string
	ttl         time.Duration
	length      int
	maxAttempts int
}

var _ accounts.RecoveryCodes = (*RedisRecoveryCodes)(nil)

func NewRedisRecoveryCodes(client redis.UniversalClient, prefix string, ttl time.Duration, length, maxAttempts int) *RedisRecoveryCodes {
	if ttl <= 0 {
		ttl = accounts.DefaultRecoveryCodeTTL
	}
	if length <= 0 {
		length = accounts.DefaultRecoveryCodeLength
	}
	if maxAttempts <= 0 {
		maxAttempts = accounts.DefaultRecoveryMaxAttempts
	}
	return &RedisRecoveryCodes{
		client:      client,
		prefix:      prefix,
		ttl:         ttl,
		length:      length,
		maxAttempts: maxAttempts,
	}
}

func (r *RedisRecoveryCodes) key(handle string) string {
	return r.prefix + recoveryKeyPrefix + handle
}

func (r *RedisRecoveryCodes) Issue(ctx context.Context, handle string) (string, error) {
	code, err := accounts.GenerateRecoveryCode(r.length)
	if err != nil {
		return "", err
	}

	digest := accounts.HashRecoveryCode(code)
	key := r.key(handle)

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fieldDigest, hex.EncodeToString(digest[:]), fieldAttempts, 0)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store recovery code")
	}

	return code, nil
}

func (r *RedisRecoveryCodes) Consume(ctx context.Context, handle, code string) error {
	key := r.key(handle)

	var result error
	txf := func(tx *redis.Tx) error {
		values, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		stored, ok := values[fieldDigest]
		if !ok {
			result = accounts.ErrInvalidRecoveryCode
			return nil
		}

		attempts, _ := strconv.Atoi(values[fieldAttempts])
		digest := accounts.HashRecoveryCode(code)
		candidate := hex.EncodeToString(digest[:])

		if subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1 {
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			result = nil
			return err
		}

		result = accounts.ErrInvalidRecoveryCode
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if attempts+1 >= r.maxAttempts {
				pipe.Del(ctx, key)
			} else {
				pipe.HIncrBy(ctx, key, fieldAttempts, 1)
			}
			return nil
		})
		return err
	}

	for i := 0; i < recoveryMaxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return result
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume recovery code")
	}

	return goerrors.New("recovery code consumption contended", goerrors.CategoryOperation).
		WithCode(goerrors.CodeConflict)
}
