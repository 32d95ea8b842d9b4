package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wichananm65/referral-tracker/internal/leaderboard"
)

const (
	keyTopReferrer = "referrals:top"
	keyGeneration  = "referrals:top:gen"
)

// LeaderboardCache keeps the last top-referrer result in Redis, including the
// empty one. Writes are guarded by a generation counter that Invalidate bumps.
type LeaderboardCache struct {
	rdb *redis.Client
	ttl time.Duration
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

func NewLeaderboardCache(rdb *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached result or nil on a miss.
func (c *LeaderboardCache) Get(ctx context.Context) (*leaderboard.Result, error) {
	b, err := c.rdb.Get(ctx, keyTopReferrer).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var r leaderboard.Result
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (c *LeaderboardCache) Generation(ctx context.Context) (int64, error) {
	return generation(ctx, c.rdb)
}

// Set stores r unless the generation moved past gen. A lost race is not an
// error; the entry is simply not written.
func (c *LeaderboardCache) Set(ctx context.Context, gen int64, r leaderboard.Result) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := generation(ctx, tx)
		if err != nil {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, keyTopReferrer, b, c.ttl)
			return nil
		})
		return err
	}, keyGeneration)
	if errors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

// Invalidate bumps the generation before deleting, so an in-flight Set that
// read the old generation is rejected.
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Incr(ctx, keyGeneration)
		p.Del(ctx, keyTopReferrer)
		return nil
	})
	return err
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, cmd getter) (int64, error) {
	gen, err := cmd.Get(ctx, keyGeneration).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}
