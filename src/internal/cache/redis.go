package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/ce-fello/codeclash-service/src/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	challengePrefix = "challenge:"
	listPrefix      = "challenges:list:"
	listIndexKey    = "challenges:lists"
)

// Redis shares the cache between service instances. Redis failures are
// logged and treated as misses.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedis(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, ttl: ttl, log: logger}
}

func (r *Redis) load(ctx context.Context, key string, v any) bool {
	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("cache.Redis: get failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		r.log.Warn("cache.Redis: decode failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Redis) store(ctx context.Context, key string, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	if err := r.rdb.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.log.Warn("cache.Redis: set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Redis) Get(ctx context.Context, id string) (model.Challenge, bool) {
	var c model.Challenge
	if !r.load(ctx, challengePrefix+id, &c) {
		return model.Challenge{}, false
	}
	c.Reindex()
	return c, true
}

func (r *Redis) Put(ctx context.Context, c model.Challenge) {
	r.store(ctx, challengePrefix+c.ID, c)
}

func (r *Redis) Invalidate(ctx context.Context, id string) {
	if err := r.rdb.Del(ctx, challengePrefix+id).Err(); err != nil {
		r.log.Warn("cache.Redis: del failed", zap.String("challenge", id), zap.Error(err))
	}
}

func (r *Redis) GetList(ctx context.Context, key string) (model.ChallengePage, bool) {
	var p model.ChallengePage
	if !r.load(ctx, listPrefix+key, &p) {
		return model.ChallengePage{}, false
	}
	return p, true
}

// PutList stores the page and records its key so InvalidateLists can find it.
func (r *Redis) PutList(ctx context.Context, key string, page model.ChallengePage) {
	if !r.store(ctx, listPrefix+key, page) {
		return
	}
	if err := r.rdb.SAdd(ctx, listIndexKey, listPrefix+key).Err(); err != nil {
		r.log.Warn("cache.Redis: index list failed", zap.String("key", key), zap.Error(err))
	}
}

func (r *Redis) InvalidateLists(ctx context.Context) {
	keys, err := r.rdb.SMembers(ctx, listIndexKey).Result()
	if err != nil {
		r.log.Warn("cache.Redis: read list index failed", zap.Error(err))
		return
	}
	keys = append(keys, listIndexKey)
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		r.log.Warn("cache.Redis: drop lists failed", zap.Error(err))
	}
}
