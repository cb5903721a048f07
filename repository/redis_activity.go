package repository

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/activitymap"
)

const (
	activityStreamKey    = "activity"
	defaultActivityLimit = 10000
	activityTimeout      = 2 * time.Second
)

// RedisActivityStream appends activity entries to a redis stream at
// <prefix>activity, trimmed to roughly maxLen entries.
type RedisActivityStream struct {
	client redis.UniversalClient
	stream string
	maxLen int64
}

var _ accounts.ActivitySink = (*RedisActivityStream)(nil)

// NewRedisActivityStream keeps at most maxLen entries, 0 uses the default
func NewRedisActivityStream(client redis.UniversalClient, prefix string, maxLen int64) *RedisActivityStream {
	if maxLen <= 0 {
		maxLen = defaultActivityLimit
	}
	return &RedisActivityStream{
		client: client,
		stream: prefix + activityStreamKey,
		maxLen: maxLen,
	}
}

// Stream returns the stream key entries are written to
func (s *RedisActivityStream) Stream() string {
	return s.stream
}

// Record implements accounts.ActivitySink
func (s *RedisActivityStream) Record(ctx context.Context, event accounts.ActivityEvent) error {
	values, err := activitymap.FromEvent(event).Fields()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, activityTimeout)
	defer cancel()

	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: values,
	}).Err()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to append activity record")
	}

	return nil
}
