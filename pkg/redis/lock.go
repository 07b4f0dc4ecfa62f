package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when the lock is held elsewhere after all
// attempts.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Locker hands out short-lived exclusive locks (SET NX PX) keyed by name.
type Locker struct {
	client *Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

var releaseScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// NewLocker creates a locker. ttl bounds how long a crashed holder can
// block others.
func NewLocker(client *Client, prefix string, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: prefix, ttl: ttl, retry: 50 * time.Millisecond}
}

// Acquire blocks until the named lock is held or ctx is done. The returned
// release func is safe to call once; with Redis disabled it is a no-op.
func (l *Locker) Acquire(ctx context.Context, name string) (func(), error) {
	if !l.client.Enabled() {
		return func() {}, nil
	}

	key := fmt.Sprintf("%s:lock:%s", l.prefix, name)
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	for {
		ok, err := l.client.Redis().SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
		}
		if ok {
			return func() {
				// release with a fresh context so a cancelled caller still frees the key
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client.Redis(), []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, name, ctx.Err())
		case <-time.After(l.retry):
		}
	}
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
