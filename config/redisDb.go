package config

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var (
	rdb     *redis.Client
	locker  *redislock.Client
	redisMu sync.RWMutex
)

// GetRedisDB returns nil until ConnectRedisWithRetry succeeds.
func GetRedisDB() *redis.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return rdb
}

func GetRedisLock() *redislock.Client {
	redisMu.RLock()
	defer redisMu.RUnlock()
	return locker
}

// GetRedisObject decodes the JSON value at key into dest. It reports false
// when the key is absent or Redis is not connected.
func GetRedisObject(ctx context.Context, key string, dest interface{}) (bool, error) {
	c := GetRedisDB()
	if c == nil {
		return false, nil
	}
	val, err := c.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(ctx context.Context, key string, obj interface{}, exp time.Duration) error {
	c := GetRedisDB()
	if c == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, objInByte, exp).Err()
}

func RemoveRedisKey(ctx context.Context, keys ...string) error {
	c := GetRedisDB()
	if c == nil {
		return nil
	}
	_, err := c.Del(ctx, keys...).Result()
	return err
}

// GetRedisCounter returns the integer at key, 0 when the key is absent or
// Redis is not connected.
func GetRedisCounter(ctx context.Context, key string) (int64, error) {
	c := GetRedisDB()
	if c == nil {
		return 0, nil
	}
	n, err := c.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

func IncrRedisKey(ctx context.Context, key string) error {
	c := GetRedisDB()
	if c == nil {
		return nil
	}
	return c.Incr(ctx, key).Err()
}

var errCounterMoved = errors.New("counter moved")

// SetRedisObjectIfCounter writes obj at key only while counterKey still
// holds want. It reports whether the write happened.
func SetRedisObjectIfCounter(ctx context.Context, key string, obj interface{}, exp time.Duration, counterKey string, want int64) (bool, error) {
	c := GetRedisDB()
	if c == nil {
		return false, nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return false, err
	}
	err = c.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, counterKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != want {
			return errCounterMoved
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, objInByte, exp)
			return nil
		})
		return err
	}, counterKey)
	if errors.Is(err, errCounterMoved) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	return err == nil, err
}

// RedisConfigured reports whether REDIS_ADDRESS is set.
func RedisConfigured() bool {
	return os.Getenv("REDIS_ADDRESS") != ""
}

// ConnectRedisWithRetry connects and sets the global Redis client and lock
// client. It returns false if ctx ends first.
func ConnectRedisWithRetry(ctx context.Context) bool {
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		addr = "localhost:6379"
	}
	err := retry(ctx, "redis", logrus.Fields{"field": "redis", "addr": addr}, func(ctx context.Context) error {
		c := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			PoolSize: 100,
		})
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}
		redisMu.Lock()
		rdb = c
		locker = redislock.New(c)
		redisMu.Unlock()
		return nil
	})
	return err == nil
}
