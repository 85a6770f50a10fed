package campaign

import (
	"context"
	"errors"
	"time"

	"lead-recovery/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// Limiter caps concurrent gateway calls across processes.
// Acquire blocks until a slot is free or ctx ends; release must be called once.
type Limiter interface {
	Acquire(ctx context.Context, holder string) (release func(), err error)
}

type noopLimiter struct{}

func (noopLimiter) Acquire(context.Context, string) (func(), error) { return func() {}, nil }

// NoopLimiter never blocks.
func NoopLimiter() Limiter { return noopLimiter{} }

// RedisLimiter shares a slot pool in Redis (see utils.AcquireSlot).
type RedisLimiter struct {
	rdb   redis.Scripter
	key   string
	limit int
	lease time.Duration
	poll  time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, key string, limit int, lease time.Duration) (*RedisLimiter, error) {
	if rdb == nil {
		return nil, errors.New("campaign: redis client is nil")
	}
	if key == "" || limit <= 0 || lease <= 0 {
		return nil, errors.New("campaign: limiter needs key, limit > 0 and lease > 0")
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, lease: lease, poll: 250 * time.Millisecond}, nil
}

func (l *RedisLimiter) Acquire(ctx context.Context, holder string) (func(), error) {
	t := time.NewTicker(l.poll)
	defer t.Stop()
	for {
		ok, err := utils.AcquireSlot(ctx, l.rdb, l.key, holder, l.limit, l.lease)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
				defer cancel()
				_ = utils.ReleaseSlot(ctx, l.rdb, l.key, holder)
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}
