package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/thinh267/stat-arb/internal/models"
	"github.com/thinh267/stat-arb/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisCache - общий кэш свечей между процессами и прогонами.
// При недоступности Redis чтение и запись уходят в память процесса.
type RedisCache struct {
	rdb *redis.Client
	mem *MemoryCache
	ttl time.Duration
	log *utils.Logger
}

// NewRedisCache подключается к Redis и проверяет соединение через PING
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisCacheWithClient(rdb, ttl), nil
}

// NewRedisCacheWithClient оборачивает готовый клиент
func NewRedisCacheWithClient(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		rdb: rdb,
		mem: NewMemoryCache(ttl),
		ttl: ttl,
		log: utils.L().WithComponent("candle_cache"),
	}
}

// Get читает серию из Redis; при ошибке Redis - из памяти
func (r *RedisCache) Get(ctx context.Context, key string) ([]models.Candle, bool) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Debug("redis get failed, using memory cache", zap.String("key", key), zap.Error(err))
		return r.mem.Get(ctx, key)
	}

	var candles []models.Candle
	if err := json.Unmarshal(b, &candles); err != nil {
		r.log.Warn("corrupted cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return candles, true
}

// SetIfAbsent записывает серию через SET NX с TTL. Если ключ уже занят,
// возвращается значение из Redis.
func (r *RedisCache) SetIfAbsent(ctx context.Context, key string, candles []models.Candle) ([]models.Candle, bool) {
	payload, err := json.Marshal(candles)
	if err != nil {
		return candles, false
	}

	ok, err := r.rdb.SetNX(ctx, key, string(payload), r.ttl).Result()
	if err != nil {
		r.log.Debug("redis setnx failed, using memory cache", zap.String("key", key), zap.Error(err))
		return r.mem.SetIfAbsent(ctx, key, candles)
	}
	if ok {
		return candles, true
	}

	if existing, found := r.Get(ctx, key); found {
		return existing, false
	}
	// ключ истёк между SETNX и GET
	return candles, false
}

// Health проверяет соединение с Redis
func (r *RedisCache) Health(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close закрывает клиент Redis
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
