package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/crmigrate/backend/internal/domain/migration"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRunLockPrefix namespaces migration lock keys
const DefaultRunLockPrefix = "migration:lock:"

// releaseScript deletes the lock only when it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// RedisRunLock implements migration.RunLock with one Redis key per org.
// The key is set with SET NX and an expiry, so instances share the lock.
type RedisRunLock struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisRunLock creates a lock over client. An empty prefix uses
// DefaultRunLockPrefix.
func NewRedisRunLock(client redis.UniversalClient, keyPrefix string) *RedisRunLock {
	if keyPrefix == "" {
		keyPrefix = DefaultRunLockPrefix
	}
	return &RedisRunLock{client: client, keyPrefix: keyPrefix}
}

func (l *RedisRunLock) key(orgID uuid.UUID) string {
	return l.keyPrefix + orgID.String()
}

// Acquire sets the org marker to token unless another holder has it
func (l *RedisRunLock) Acquire(ctx context.Context, orgID uuid.UUID, token string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(orgID), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	return ok, nil
}

// Release removes the org marker if token still holds it
func (l *RedisRunLock) Release(ctx context.Context, orgID uuid.UUID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(orgID)}, token).Err(); err != nil {
		return fmt.Errorf("failed to release migration lock: %w", err)
	}
	return nil
}

// ForceUnlock deletes the org marker and reports whether one existed
func (l *RedisRunLock) ForceUnlock(ctx context.Context, orgID uuid.UUID) (bool, error) {
	n, err := l.client.Del(ctx, l.key(orgID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to force unlock migration lock: %w", err)
	}
	return n > 0, nil
}

// Holder returns the token holding the org lock, or "" when unlocked
func (l *RedisRunLock) Holder(ctx context.Context, orgID uuid.UUID) (string, error) {
	token, err := l.client.Get(ctx, l.key(orgID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read migration lock: %w", err)
	}
	return token, nil
}

var _ migration.RunLock = (*RedisRunLock)(nil)
