package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/visa2any/fly2any-sub046/internal/domain/providers"
	redisclient "github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/redis"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

// releaseScript deletes the lock only if it still belongs to the caller.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a Redis lease shared by every pre-warm process.
type RunLock struct {
	client *redisclient.Client
	key    string
}

// NewRunLock creates a lock stored under key.
func NewRunLock(client *redisclient.Client, key string) *RunLock {
	return &RunLock{client: client, key: key}
}

var _ providers.RunLock = (*RunLock)(nil)

// Acquire sets the key to owner unless it exists. The lease expires after ttl
// so a crashed holder cannot block later runs forever.
func (l *RunLock) Acquire(ctx context.Context, owner string, ttl time.Duration) (bool, error) {
	ok, err := l.client.Client().SetNX(ctx, l.key, owner, ttl).Result()
	if err != nil {
		return false, apperrors.NewUnavailableError("failed to acquire run lock", err)
	}
	return ok, nil
}

func (l *RunLock) Release(ctx context.Context, owner string) error {
	if err := releaseScript.Run(ctx, l.client.Client(), []string{l.key}, owner).Err(); err != nil && err != redis.Nil {
		return apperrors.NewUnavailableError("failed to release run lock", err)
	}
	return nil
}
