// Package lock provides short-lived claims used to keep a post from being
// published or notified twice.
package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Locker interface {
	// TryLock claims key for ttl. It reports false when the key is already
	// claimed.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Unlock releases a claim early.
	Unlock(ctx context.Context, key string) error
}

// Redis claims keys with SET NX so several processes can share them. Each
// claim stores a random token and Unlock only deletes the key while it still
// holds this process's token.
type Redis struct {
	client *redis.Client
	prefix string

	mu     sync.Mutex
	tokens map[string]string
}

var _ Locker = (*Redis)(nil)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix, tokens: make(map[string]string)}
}

func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.prefix+key, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claiming %s: %w", key, err)
	}
	if ok {
		r.mu.Lock()
		r.tokens[key] = token
		r.mu.Unlock()
	}
	return ok, nil
}

func (r *Redis) Unlock(ctx context.Context, key string) error {
	r.mu.Lock()
	token, ok := r.tokens[key]
	delete(r.tokens, key)
	r.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseScript.Run(ctx, r.client, []string{r.prefix + key}, token).Err(); err != nil {
		return fmt.Errorf("releasing %s: %w", key, err)
	}
	return nil
}

// Local claims keys within the current process.
type Local struct {
	mu   sync.Mutex
	keys map[string]time.Time
	now  func() time.Time
}

var _ Locker = (*Local)(nil)

func NewLocal() *Local {
	return &Local{keys: make(map[string]time.Time), now: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expires, ok := l.keys[key]; ok && now.Before(expires) {
		return false, nil
	}
	l.keys[key] = now.Add(ttl)

	// opportunistic cleanup so the map does not grow with every post ever seen
	if len(l.keys) > 1024 {
		for k, exp := range l.keys {
			if !now.Before(exp) {
				delete(l.keys, k)
			}
		}
	}
	return true, nil
}

func (l *Local) Unlock(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
	return nil
}
