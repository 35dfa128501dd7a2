package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ Redis 缓存
// =============================================================================

const dialTimeout = 5 * time.Second

// RedisConfig 连接参数；零值字段沿用 go-redis 默认
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	TLS          bool
	MaxRetries   int
	PoolSize     int
	MinIdleConns int

	// KeyPrefix 拼在每个键前面，多实例共用一个库时用于隔离
	KeyPrefix string
	// DefaultTTL Set 传入 ttl=0 时使用；<=0 表示不过期
	DefaultTTL time.Duration
}

func (c RedisConfig) options() *redis.Options {
	opts := &redis.Options{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   c.MaxRetries,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  dialTimeout,
	}
	if c.TLS {
		opts.TLSConfig = tlsutil.DefaultTLSConfig()
	}
	return opts
}

// RedisStore 基于 go-redis 的 Store；连通性由 /ready 的 Ping 探测
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
	closed atomic.Bool
}

// NewRedisStore 连接并 Ping 一次，不通则返回错误
func NewRedisStore(cfg RedisConfig, logger *zap.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(cfg.options())

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis %s: %w", cfg.Addr, err)
	}

	return &RedisStore{
		client: client,
		prefix: cfg.KeyPrefix,
		ttl:    cfg.DefaultTTL,
		logger: logger.With(zap.String("component", "cache"), zap.String("backend", "redis")),
	}, nil
}

func (s *RedisStore) key(k string) string { return s.prefix + k }

func (s *RedisStore) keys(ks []string) []string {
	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = s.key(k)
	}
	return out
}

// fail 统一包装并记录 Redis 错误
func (s *RedisStore) fail(op, key string, err error) error {
	s.logger.Warn("redis "+op+" failed", zap.String("key", key), zap.Error(err))
	return fmt.Errorf("cache %s: %w", op, err)
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	if s.closed.Load() {
		return "", ErrClosed
	}
	val, err := s.client.Get(ctx, s.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", ErrCacheMiss
	case err != nil:
		return "", s.fail("get", key, err)
	}
	return val, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if ttl == 0 {
		ttl = s.ttl
	}
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		return s.fail("set", key, err)
	}
	return nil
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := s.client.Expire(ctx, s.key(key), ttl).Err(); err != nil {
		return s.fail("expire", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, s.keys(keys)...).Err(); err != nil {
		return s.fail("delete", keys[0], err)
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.client.Ping(ctx).Err()
}

// Close 可重复调用
func (s *RedisStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.client.Close()
}
