// 配置文件热更新。
//
// 轮询配置文件的修改时间与大小，变化后经过去抖重新加载、校验，
// 成功则原子替换当前配置并回调；失败保留旧配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 在配置成功替换后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 监听配置文件并在变更时重新加载
type Reloader struct {
	loader   *Loader
	current  atomic.Pointer[Config]
	interval time.Duration
	debounce time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	callbacks []ReloadCallback
	lastStat  fileStamp
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

type fileStamp struct {
	modTime time.Time
	size    int64
	exists  bool
}

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithPollInterval 设置轮询间隔（默认 1s）
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.interval = d }
}

// WithDebounce 设置去抖时长（默认 100ms）
func WithDebounce(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.debounce = d }
}

// WithReloadLogger 设置日志
func WithReloadLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) { r.logger = logger }
}

// NewReloader 创建 Reloader；initial 为已加载的配置
func NewReloader(loader *Loader, initial *Config, opts ...ReloaderOption) *Reloader {
	r := &Reloader{
		loader:   loader,
		interval: time.Second,
		debounce: 100 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))
	r.current.Store(initial)
	return r
}

// Current 返回当前配置
func (r *Reloader) Current() *Config { return r.current.Load() }

// OnReload 注册回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start 开始轮询；未设置配置文件路径时为空操作
func (r *Reloader) Start(ctx context.Context) error {
	path := r.loader.ConfigPath()
	if path == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.lastStat = stat(path)

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, path)

	r.logger.Info("watching config file",
		zap.String("path", path),
		zap.Duration("interval", r.interval))
	return nil
}

// Stop 停止轮询并等待后台 goroutine 退出
func (r *Reloader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	<-done
}

func (r *Reloader) loop(ctx context.Context, path string) {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := stat(path)
		r.mu.Lock()
		changed := cur != r.lastStat
		r.lastStat = cur
		r.mu.Unlock()
		if !changed || !cur.exists {
			continue
		}

		// 编辑器常分多次写入，等待写入稳定
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.debounce):
		}
		r.mu.Lock()
		r.lastStat = stat(path)
		r.mu.Unlock()

		if err := r.Reload(); err != nil {
			r.logger.Warn("config reload rejected, keeping previous config", zap.Error(err))
		}
	}
}

// Reload 立即重新加载配置文件；校验失败时保留当前配置
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	prev := r.current.Swap(next)

	r.mu.Lock()
	callbacks := append([]ReloadCallback(nil), r.callbacks...)
	r.mu.Unlock()

	r.logger.Info("config reloaded", zap.String("path", r.loader.ConfigPath()))
	for _, cb := range callbacks {
		r.safeCall(cb, prev, next)
	}
	return nil
}

func (r *Reloader) safeCall(cb ReloadCallback, prev, next *Config) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reload callback panicked", zap.Any("panic", p))
		}
	}()
	cb(prev, next)
}

func stat(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size(), exists: true}
}
