package server

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// =============================================================================
// 👥 多端口编组
// =============================================================================

// Group 把 API 与 metrics 端口作为一个整体启动和关闭：
// 任一端口异常退出都会让 Wait 返回。
type Group struct {
	managers []*Manager
	logger   *zap.Logger
}

// NewGroup 创建编组；nil 的 Manager 会被忽略
func NewGroup(logger *zap.Logger, managers ...*Manager) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Group{logger: logger}
	for _, m := range managers {
		if m != nil {
			g.managers = append(g.managers, m)
		}
	}
	return g
}

// Start 按顺序启动；任一失败则关闭已启动的端口并返回错误
func (g *Group) Start() error {
	for i, m := range g.managers {
		if err := m.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.managers[j].Shutdown(context.Background())
			}
			return err
		}
	}
	return nil
}

// Wait 阻塞直到 ctx 结束或某个端口异常退出。
// ctx 结束返回 nil；端口异常返回该端口的错误。
func (g *Group) Wait(ctx context.Context) error {
	failed := make(chan error, len(g.managers))
	for _, m := range g.managers {
		go func(m *Manager) {
			if err, ok := <-m.Exited(); ok && err != nil {
				failed <- err
			}
		}(m)
	}

	select {
	case <-ctx.Done():
		g.logger.Info("shutdown requested", zap.NamedError("reason", context.Cause(ctx)))
		return nil
	case err := <-failed:
		g.logger.Error("listener exited unexpectedly", zap.Error(err))
		return err
	}
}

// Shutdown 逆序关闭所有端口，汇总错误
func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(g.managers) - 1; i >= 0; i-- {
		if err := g.managers[i].Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
