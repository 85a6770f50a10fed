package campaign

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTracker keeps batch progress in three hashes per batch so any API
// instance can answer progress queries:
//
//	campaign:{id}:meta      table, started_at, finished_at
//	campaign:{id}:outcomes  lead id -> outcome
//	campaign:{id}:claims    lead id -> claim time (HSETNX)
//
// All keys expire after ttl.
type RedisTracker struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisTracker(rdb redis.Cmdable, ttl time.Duration) (*RedisTracker, error) {
	if rdb == nil {
		return nil, errors.New("campaign: redis client is nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisTracker{rdb: rdb, ttl: ttl}, nil
}

func batchKey(batchID, part string) string {
	return fmt.Sprintf("campaign:{%s}:%s", batchID, part)
}

func (t *RedisTracker) Begin(ctx context.Context, batchID, table string, leadIDs []int64, at time.Time) error {
	meta := batchKey(batchID, "meta")
	outcomes := batchKey(batchID, "outcomes")
	claims := batchKey(batchID, "claims")

	_, err := t.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSetNX(ctx, meta, "started_at", at.UTC().Format(time.RFC3339Nano))
		p.HSet(ctx, meta, "table", table)
		p.HDel(ctx, meta, "finished_at")
		for _, id := range leadIDs {
			p.HSetNX(ctx, outcomes, strconv.FormatInt(id, 10), string(OutcomePending))
		}
		p.Expire(ctx, meta, t.ttl)
		p.Expire(ctx, outcomes, t.ttl)
		p.Expire(ctx, claims, t.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("campaign: begin batch: %w", err)
	}
	return nil
}

func (t *RedisTracker) Claim(ctx context.Context, batchID string, leadID int64) (bool, error) {
	key := batchKey(batchID, "claims")
	ok, err := t.rdb.HSetNX(ctx, key, strconv.FormatInt(leadID, 10), time.Now().UTC().Format(time.RFC3339)).Result()
	if err != nil {
		return false, err
	}
	if ok {
		// Begin may have run on another instance before claims existed.
		_ = t.rdb.Expire(ctx, key, t.ttl).Err()
	}
	return ok, nil
}

func (t *RedisTracker) Release(ctx context.Context, batchID string, leadID int64) error {
	return t.rdb.HDel(ctx, batchKey(batchID, "claims"), strconv.FormatInt(leadID, 10)).Err()
}

func (t *RedisTracker) Record(ctx context.Context, batchID string, leadID int64, outcome Outcome) error {
	return t.rdb.HSet(ctx, batchKey(batchID, "outcomes"), strconv.FormatInt(leadID, 10), string(outcome)).Err()
}

func (t *RedisTracker) Finish(ctx context.Context, batchID string, at time.Time) error {
	return t.rdb.HSet(ctx, batchKey(batchID, "meta"), "finished_at", at.UTC().Format(time.RFC3339Nano)).Err()
}

func (t *RedisTracker) Progress(ctx context.Context, batchID string) (Progress, error) {
	meta, err := t.rdb.HGetAll(ctx, batchKey(batchID, "meta")).Result()
	if err != nil {
		return Progress{}, err
	}
	if len(meta) == 0 {
		return Progress{}, ErrBatchNotFound
	}
	raw, err := t.rdb.HGetAll(ctx, batchKey(batchID, "outcomes")).Result()
	if err != nil {
		return Progress{}, err
	}

	p := Progress{BatchID: batchID, Table: meta["table"], Outcomes: make(map[int64]Outcome, len(raw))}
	if v, ok := meta["started_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.StartedAt = ts
		}
	}
	if v, ok := meta["finished_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			p.FinishedAt = &ts
			p.Done = true
		}
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		p.Outcomes[id] = Outcome(v)
	}
	return p, nil
}
