package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/sensorhub/sensorhub/pkg/poll"
)

// KVStore is the typed adapter over the shared key-value store. Higher layers
// go through it for every primitive the hub needs: plain keys, atomic
// set-if-absent with TTL, Lua evaluation, sorted sets, sets, counters and
// transactional pipelines. Callers own key naming; the adapter owns the client.
type KVStore interface {
	Close() error
	CheckHealth(ctx context.Context) error

	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error

	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
	Keys(ctx context.Context, pattern string) ([]string, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	ZRangeByScore(ctx context.Context, key, min, max string, offset, count int64) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) error
	ZCard(ctx context.Context, key string) (int64, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)

	Incr(ctx context.Context, key string) (int64, error)
	IncrBy(ctx context.Context, key string, value int64) (int64, error)

	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) error
}

type Options struct {
	Hostname      string
	Port          uint
	Password      string
	DB            int
	SocketTimeout time.Duration
	Tracing       bool
}

type kvStore struct {
	client *redis.Client
	log    logrus.FieldLogger
}

func NewKVStore(ctx context.Context, log logrus.FieldLogger, opts Options) (KVStore, error) {
	socketTimeout := opts.SocketTimeout
	if socketTimeout <= 0 {
		socketTimeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:            fmt.Sprintf("%s:%d", opts.Hostname, opts.Port),
		Password:        opts.Password,
		DB:              opts.DB,
		MaxRetries:      3,
		MinRetryBackoff: 500 * time.Millisecond,
		MaxRetryBackoff: 2 * time.Second,
		ReadTimeout:     socketTimeout,
		WriteTimeout:    socketTimeout,
		DialTimeout:     5 * time.Second,
	})

	if opts.Tracing {
		if err := redisotel.InstrumentTracing(client); err != nil {
			return nil, fmt.Errorf("failed to enable tracing instrumentation: %w", err)
		}
	}

	// Wait for the store to accept connections, transient dial errors are
	// retried with backoff until the connect timeout.
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	err := poll.BackoffWithContext(connectCtx, poll.Config{
		BaseDelay: 500 * time.Millisecond,
		Factor:    2,
		MaxDelay:  5 * time.Second,
	}, func(ctx context.Context) (bool, error) {
		if err := client.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("key-value store not ready, retrying")
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to the key-value store: %w", err)
	}
	log.Info("successfully connected to the key-value store")

	return &kvStore{client: client, log: log}, nil
}

// NewKVStoreWithClient wraps an existing client. Used by tests.
func NewKVStoreWithClient(log logrus.FieldLogger, client *redis.Client) KVStore {
	return &kvStore{client: client, log: log}
}

func (s *kvStore) Close() error {
	return s.client.Close()
}

func (s *kvStore) CheckHealth(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Get returns the value for the specified key, or nil when the key is absent.
func (s *kvStore) Get(ctx context.Context, key string) ([]byte, error) {
	ret, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return ret, err
}

func (s *kvStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// SetNX sets the key to value only if the key does Not eXist. Returns a
// boolean indicating if the value was written by this call.
func (s *kvStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed storing key: %w", err)
	}
	return ok, nil
}

func (s *kvStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *kvStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s *kvStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *kvStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	return s.client.Eval(ctx, script, keys, args...).Result()
}

// Keys returns every key matching pattern, collected with cursor-based SCAN
// rather than the blocking KEYS command.
func (s *kvStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *kvStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.client.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *kvStore) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.client.ZRange(ctx, key, start, stop).Result()
}

func (s *kvStore) ZRangeByScore(ctx context.Context, key, min, max string, offset, count int64) ([]string, error) {
	return s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:    min,
		Max:    max,
		Offset: offset,
		Count:  count,
	}).Result()
}

func (s *kvStore) ZRemRangeByScore(ctx context.Context, key, min, max string) error {
	return s.client.ZRemRangeByScore(ctx, key, min, max).Err()
}

func (s *kvStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.client.ZCard(ctx, key).Result()
}

func (s *kvStore) SAdd(ctx context.Context, key string, members ...string) error {
	vals := make([]interface{}, 0, len(members))
	for _, m := range members {
		vals = append(vals, m)
	}
	return s.client.SAdd(ctx, key, vals...).Err()
}

func (s *kvStore) SRem(ctx context.Context, key string, members ...string) error {
	vals := make([]interface{}, 0, len(members))
	for _, m := range members {
		vals = append(vals, m)
	}
	return s.client.SRem(ctx, key, vals...).Err()
}

func (s *kvStore) SMembers(ctx context.Context, key string) ([]string, error) {
	return s.client.SMembers(ctx, key).Result()
}

func (s *kvStore) SCard(ctx context.Context, key string) (int64, error) {
	return s.client.SCard(ctx, key).Result()
}

func (s *kvStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.client.Incr(ctx, key).Result()
}

func (s *kvStore) IncrBy(ctx context.Context, key string, value int64) (int64, error) {
	return s.client.IncrBy(ctx, key, value).Result()
}

// TxPipelined runs fn queuing commands on a transactional pipeline, then
// executes them as one MULTI/EXEC round trip.
func (s *kvStore) TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) error {
	_, err := s.client.TxPipelined(ctx, fn)
	return err
}
