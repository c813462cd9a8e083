package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProvisionLock serializa el alta de un mismo email entre instancias.
type ProvisionLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

type memoryLockEntry struct {
	token     string
	expiresAt time.Time
}

type memoryProvisionLock struct {
	mu    sync.Mutex
	items map[string]memoryLockEntry
}

func NewMemoryProvisionLock() ProvisionLock {
	return &memoryProvisionLock{
		items: make(map[string]memoryLockEntry),
	}
}

func (l *memoryProvisionLock) Acquire(_ context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	if entry, ok := l.items[key]; ok && now.Before(entry.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.items[key] = memoryLockEntry{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (l *memoryProvisionLock) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if entry, ok := l.items[key]; ok && entry.token == token {
		delete(l.items, key)
	}
	return nil
}

// Solo borra la clave si sigue perteneciendo a quien la tomo.
const redisReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

type redisProvisionLock struct {
	client *redis.Client
	prefix string
}

func NewRedisProvisionLock(client *redis.Client) ProvisionLock {
	if client == nil {
		return nil
	}
	return &redisProvisionLock{
		client: client,
		prefix: "migrate:lock:",
	}
}

func (l *redisProvisionLock) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if strings.TrimSpace(key) == "" {
		return "", false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (l *redisProvisionLock) Release(ctx context.Context, key, token string) error {
	if strings.TrimSpace(key) == "" || token == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 500*time.Millisecond)
	defer cancel()
	return l.client.Eval(ctx, redisReleaseScript, []string{l.prefix + key}, token).Err()
}
