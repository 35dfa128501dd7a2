package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Store 键值缓存。ttl=0 取实现的默认过期时间。
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Clock 可替换的时间源
type Clock func() time.Time

var (
	// ErrCacheMiss Get 未找到键或键已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed Close 之后的任何调用
	ErrClosed = errors.New("cache is closed")
)

func IsCacheMiss(err error) bool { return errors.Is(err, ErrCacheMiss) }

// GetJSON 读取并解码；未命中时返回 ErrCacheMiss
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return fmt.Errorf("decode cached %q: %w", key, err)
	}
	return nil
}

func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q for cache: %w", key, err)
	}
	return s.Set(ctx, key, string(raw), ttl)
}
