package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/visa2any/fly2any-sub046/internal/adapters/cache"
	redisclient "github.com/visa2any/fly2any-sub046/internal/infrastructure/clients/redis"
	apperrors "github.com/visa2any/fly2any-sub046/pkg/errors"
)

func unreachableRedis(t *testing.T) *redisclient.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return redisclient.NewClientFrom(rdb)
}

func TestRunLock_UnreachableRedisIsUnavailable(t *testing.T) {
	lock := cache.NewRunLock(unreachableRedis(t), "prewarm:lock")
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "run-1", time.Minute)
	assert.False(t, ok)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))

	err = lock.Release(ctx, "run-1")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeUnavailable))
}

func TestRedisAdapter_UnreachableRedisReturnsError(t *testing.T) {
	adapter := cache.NewRedisAdapter(unreachableRedis(t))

	_, err := adapter.Get(context.Background(), "flight:search:JFK:LAX")
	assert.Error(t, err)
	assert.Error(t, adapter.Set(context.Background(), "k", []byte("v"), 60))
}
