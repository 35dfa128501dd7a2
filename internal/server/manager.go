package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 单个监听端口
// =============================================================================

// Config 监听端口配置
type Config struct {
	// 名称，用于日志区分（api / metrics）
	Name string `yaml:"name" json:"name"`

	Addr string `yaml:"addr" json:"addr"`

	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 需覆盖最慢的生成后端（本地扩散模型可达数分钟）
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	IdleTimeout    time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 单个端口的优雅关闭上限
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 返回 API 端口的默认配置
func DefaultConfig() Config {
	return Config{
		Name:            "api",
		Addr:            ":5000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    330 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

type state int

const (
	stateIdle state = iota
	stateServing
	stateClosed
)

// Manager 管理一个 http.Server 的监听、异步服务与关闭
type Manager struct {
	srv    *http.Server
	cfg    Config
	logger *zap.Logger

	mu    sync.RWMutex
	state state
	ln    net.Listener

	// 异步 Serve 失败时写入一次后关闭
	exited chan error
}

// NewManager 创建管理器；Start 之前不占用端口
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Name == "" {
		cfg.Name = "api"
	}
	logger = logger.With(zap.String("component", "http_server"), zap.String("server", cfg.Name))

	return &Manager{
		srv: &http.Server{
			Addr:           cfg.Addr,
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
			ErrorLog:       zap.NewStdLog(logger.Named("net_http")),
		},
		cfg:    cfg,
		logger: logger,
		exited: make(chan error, 1),
	}
}

// Name 返回端口名称
func (m *Manager) Name() string { return m.cfg.Name }

// Start 绑定端口并在后台开始服务；绑定失败同步返回
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case stateClosed:
		return fmt.Errorf("server %s is closed", m.cfg.Name)
	case stateServing:
		return fmt.Errorf("server %s already started", m.cfg.Name)
	}

	ln, err := net.Listen("tcp", m.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server %s: listen on %s: %w", m.cfg.Name, m.cfg.Addr, err)
	}
	m.ln = ln
	m.state = stateServing
	m.logger.Info("listening", zap.String("addr", ln.Addr().String()))

	go func() {
		defer close(m.exited)
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("serve failed", zap.Error(err))
			m.exited <- fmt.Errorf("server %s: %w", m.cfg.Name, err)
		}
	}()
	return nil
}

// Shutdown 停止接收新连接并等待进行中的请求；可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	prev := m.state
	m.state = stateClosed
	m.mu.Unlock()

	if prev != stateServing {
		return nil
	}

	if m.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.ShutdownTimeout)
		defer cancel()
	}

	m.logger.Info("draining connections")
	if err := m.srv.Shutdown(ctx); err != nil {
		m.logger.Error("shutdown incomplete", zap.Error(err))
		return fmt.Errorf("server %s: shutdown: %w", m.cfg.Name, err)
	}
	m.logger.Info("stopped")
	return nil
}

// Exited 在后台 Serve 返回后关闭；异常退出时先送出错误
func (m *Manager) Exited() <-chan error { return m.exited }

// ListenAddr 返回实际绑定地址；未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

// IsRunning 报告是否处于服务状态
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == stateServing
}
