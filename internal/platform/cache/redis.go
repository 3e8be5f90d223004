// Package cache wraps the Redis client used for cross-instance coordination.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "carecenter"

// NewClient parses a redis:// URL, applies the service's timeouts and pings
// the server.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MinIdleConns = 2
	opts.MaxRetries = 3

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Key joins parts under the prefix, e.g. "carecenter:lock:closure:2024-01-15".
func Key(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	var sb strings.Builder
	sb.WriteString(prefix)
	for _, p := range parts {
		sb.WriteByte(':')
		sb.WriteString(p)
	}
	return sb.String()
}

// unlockScript deletes the key only while it still holds our token, so an
// expired lock taken over by another instance is left alone.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Locker implements short-lived mutual exclusion with SET NX. Every
// acquisition gets its own token, and only that token releases the key.
type Locker struct {
	client *redis.Client
	prefix string
}

func NewLocker(client *redis.Client, prefix string) *Locker {
	return &Locker{client: client, prefix: prefix}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, Key(l.prefix, "lock", key), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (l *Locker) Unlock(ctx context.Context, key, token string) error {
	if err := unlockScript.Run(ctx, l.client, []string{Key(l.prefix, "lock", key)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}

type lease struct {
	token string
	until time.Time
}

// LocalLocker is the in-process fallback used when no Redis is configured.
// It only serializes callers inside one instance.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]lease
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]lease)}
}

func (l *LocalLocker) TryLock(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if cur, ok := l.leases[key]; ok && now.Before(cur.until) {
		return "", false, nil
	}
	token := uuid.New().String()
	l.leases[key] = lease{token: token, until: now.Add(ttl)}
	return token, true, nil
}

// Unlock ignores a token whose lease expired and was taken over.
func (l *LocalLocker) Unlock(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.leases[key]; ok && cur.token == token {
		delete(l.leases, key)
	}
	return nil
}
