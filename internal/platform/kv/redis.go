// Package kv は Redis のキャッシュと分散ロック
//
// Redis に繋がらない場合は nil クライアントのまま動作し、
// キャッシュは常にミス、ロックは取得失敗を返す。
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"CAMPUS-backend/internal/platform/db"
	"CAMPUS-backend/internal/platform/logging"
)

var ErrLockNotObtained = errors.New("lock not obtained")

// NewClient: Ping に失敗したら nil
func NewClient(cfg db.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 50,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logging.LogError("kv", "NewClient", "redis ping failed; cache disabled", cfg.Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}

type Cache struct {
	rdb    *redis.Client
	prefix string
}

func NewCache(rdb *redis.Client, prefix string) *Cache {
	return &Cache{rdb: rdb, prefix: prefix}
}

func (c *Cache) key(k string) string { return c.prefix + ":" + k }

// GetObject: 見つからなければ (false, nil)
func (c *Cache) GetObject(ctx context.Context, key string, dest any) (bool, error) {
	if c == nil || c.rdb == nil {
		return false, nil
	}
	val, err := c.rdb.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Cache) SetObject(ctx context.Context, key string, obj any, exp time.Duration) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, c.key(key), b, exp).Err()
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if c == nil || c.rdb == nil || len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.rdb.Del(ctx, full...).Err()
}

type Locker struct {
	lc *redislock.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	if rdb == nil {
		return &Locker{}
	}
	return &Locker{lc: redislock.New(rdb)}
}

// Enabled: Redis 無しなら false
func (l *Locker) Enabled() bool { return l != nil && l.lc != nil }

// WithLock は key のロックを取れたときだけ fn を実行する
func (l *Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	if l == nil || l.lc == nil {
		return ErrLockNotObtained
	}
	lock, err := l.lc.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return ErrLockNotObtained
	}
	if err != nil {
		return err
	}
	defer func() {
		if rerr := lock.Release(context.Background()); rerr != nil && !errors.Is(rerr, redislock.ErrLockNotHeld) {
			logging.LogError("kv", "WithLock", "release failed", key, rerr)
		}
	}()
	return fn(ctx)
}
