package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wapool/internal/constants"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RunGuard admits at most one health check run at a time.
type RunGuard interface {
	// TryAcquire returns a release function, or ok=false when a run is already active.
	TryAcquire(ctx context.Context) (release func(), ok bool, err error)
}

// LocalRunGuard serializes runs within one process.
type LocalRunGuard struct {
	mu sync.Mutex
}

func NewLocalRunGuard() *LocalRunGuard {
	return &LocalRunGuard{}
}

func (g *LocalRunGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	if !g.mu.TryLock() {
		return nil, false, nil
	}
	return g.mu.Unlock, true, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRunGuard serializes runs across replicas sharing a Redis instance.
// The lock expires after ttl so a crashed holder cannot block runs forever.
type RedisRunGuard struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	local  LocalRunGuard
	logger *logrus.Entry
}

func NewRedisRunGuard(client *redis.Client, key string, ttl time.Duration, logger *logrus.Logger) *RedisRunGuard {
	if logger == nil {
		logger = logrus.New()
	}
	if key == "" {
		key = constants.DefaultRunLockKey
	}
	if ttl <= 0 {
		ttl = time.Duration(constants.DefaultRunLockTTLSec) * time.Second
	}
	return &RedisRunGuard{client: client, key: key, ttl: ttl, logger: componentLogger(logger, "run_guard")}
}

func (g *RedisRunGuard) TryAcquire(ctx context.Context) (func(), bool, error) {
	releaseLocal, ok, _ := g.local.TryAcquire(ctx)
	if !ok {
		return nil, false, nil
	}

	token := uuid.NewString()
	acquired, err := g.client.SetNX(ctx, g.key, token, g.ttl).Result()
	if err != nil {
		releaseLocal()
		return nil, false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !acquired {
		releaseLocal()
		return nil, false, nil
	}

	return func() {
		g.unlock(token)
		releaseLocal()
	}, true, nil
}

// unlock deletes the lock only while it still holds token.
func (g *RedisRunGuard) unlock(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, g.client, []string{g.key}, token).Err(); err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"lock_key": g.key,
			"ttl_sec":  int(g.ttl.Seconds()),
		}).Warn("Failed to release run lock, other replicas wait for it to expire")
	}
}
