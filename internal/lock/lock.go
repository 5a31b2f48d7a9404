package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sensorhub/sensorhub/internal/kvstore"
	"github.com/sensorhub/sensorhub/internal/sherrors"
	"github.com/sirupsen/logrus"
)

// Lease locks over the shared store. The holder gets an opaque fencing token,
// release and extend compare the token server-side so a stale holder can never
// interfere with the next owner. A crashed holder is freed by lease expiry.

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

const extendScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("expire", KEYS[1], ARGV[2])
else
    return 0
end
`

const acquireAttempts = 3

type Manager struct {
	kv         kvstore.KVStore
	log        logrus.FieldLogger
	lease      time.Duration
	retryDelay time.Duration
}

func NewManager(log logrus.FieldLogger, kv kvstore.KVStore, lease, retryDelay time.Duration) *Manager {
	return &Manager{
		kv:         kv,
		log:        log,
		lease:      lease,
		retryDelay: retryDelay,
	}
}

func lockKey(resource string) string {
	return fmt.Sprintf("lock:%s", resource)
}

// Acquire attempts to take the lock once. It returns the fencing token and
// whether the lock was obtained.
func (m *Manager) Acquire(ctx context.Context, resource string, lease time.Duration) (string, bool, error) {
	if lease <= 0 {
		lease = m.lease
	}
	token := uuid.NewString()

	ok, err := m.kv.SetNX(ctx, lockKey(resource), []byte(token), lease)
	if err != nil {
		return "", false, fmt.Errorf("acquiring lock for %s: %w", resource, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release frees the lock if the token still matches. Releasing after lease
// expiry is a no-op.
func (m *Manager) Release(ctx context.Context, resource, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	ret, err := m.kv.Eval(ctx, releaseScript, []string{lockKey(resource)}, token)
	if err != nil {
		return false, fmt.Errorf("releasing lock for %s: %w", resource, err)
	}
	n, _ := ret.(int64)
	return n == 1, nil
}

// Extend renews the lease if the token still matches.
func (m *Manager) Extend(ctx context.Context, resource, token string, lease time.Duration) (bool, error) {
	if token == "" {
		return false, nil
	}
	if lease <= 0 {
		lease = m.lease
	}
	ret, err := m.kv.Eval(ctx, extendScript, []string{lockKey(resource)}, token, int64(lease.Seconds()))
	if err != nil {
		return false, fmt.Errorf("extending lock for %s: %w", resource, err)
	}
	n, _ := ret.(int64)
	return n == 1, nil
}

// WithLock runs fn under the lock, retrying acquisition a fixed number of
// times before giving up with ErrLockUnavailable. The lock is released when fn
// returns, fn's error passes through unchanged.
func (m *Manager) WithLock(ctx context.Context, resource string, fn func(ctx context.Context) error) error {
	var token string
	acquired := false

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		t, ok, err := m.Acquire(ctx, resource, m.lease)
		if err != nil {
			return err
		}
		if ok {
			token = t
			acquired = true
			break
		}

		select {
		case <-time.After(m.retryDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if !acquired {
		return fmt.Errorf("%w: %s", sherrors.ErrLockUnavailable, resource)
	}

	defer func() {
		if _, err := m.Release(ctx, resource, token); err != nil {
			m.log.WithError(err).Errorf("failed releasing lock for %s", resource)
		}
	}()

	return fn(ctx)
}
