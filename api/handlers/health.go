package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// APIVersion /api/health 报告的接口版本
const APIVersion = "2.0.0"

// 整体就绪状态
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// readyTimeout 单次 /ready 所有检查共享的超时
const readyTimeout = 5 * time.Second

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthCheck 依赖探测
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status   string `json:"status"` // "pass", "fail"
	Optional bool   `json:"optional,omitempty"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency,omitempty"`
}

type registeredCheck struct {
	HealthCheck
	optional bool
}

// HealthHandler 提供 /api/health、/healthz、/ready 与 /version。
// 必需检查（缓存）失败时 /ready 返回 503；可选检查（上游模型服务）
// 失败只把状态降为 degraded，仍返回 200，因为其余端点照常可用。
type HealthHandler struct {
	logger *zap.Logger
	mu     sync.RWMutex
	checks []registeredCheck
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{logger: logger.With(zap.String("component", "health"))}
}

// RegisterCheck 注册必需检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.register(check, false)
}

// RegisterOptionalCheck 注册可选检查
func (h *HealthHandler) RegisterOptionalCheck(check HealthCheck) {
	h.register(check, true)
}

func (h *HealthHandler) register(check HealthCheck, optional bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, registeredCheck{HealthCheck: check, optional: optional})
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /api/health 请求
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务正常"
// @Router /api/health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Version:   APIVersion,
	})
}

// HandleHealthz 存活探针，不做依赖检查
// @Summary Kubernetes 活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
	})
}

// HandleReady 并发执行所有已注册检查
// @Summary 就绪检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "就绪（可能为 degraded）"
// @Failure 503 {object} ServiceHealthResponse "必需依赖不可用"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := make([]registeredCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = h.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	resp := ServiceHealthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}
	for i, c := range checks {
		res := results[i]
		resp.Checks[c.Name()] = res
		if res.Status == "pass" {
			continue
		}
		if c.optional {
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		} else {
			resp.Status = StatusUnhealthy
		}
	}

	status := http.StatusOK
	if resp.Status == StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	WriteJSON(w, status, resp)
}

func (h *HealthHandler) run(ctx context.Context, c registeredCheck) CheckResult {
	start := time.Now()
	err := c.Check(ctx)
	latency := time.Since(start)

	res := CheckResult{Status: "pass", Optional: c.optional, Latency: latency.String()}
	if err != nil {
		res.Status = "fail"
		res.Message = err.Error()
		h.logger.Warn("health check failed",
			zap.String("check", c.Name()),
			zap.Bool("optional", c.optional),
			zap.Duration("latency", latency),
			zap.Error(err))
	}
	return res
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	info := map[string]string{
		"version":     version,
		"build_time":  buildTime,
		"git_commit":  gitCommit,
		"api_version": APIVersion,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, r, info)
	}
}

// =============================================================================
// 🔧 内置检查
// =============================================================================

// PingCheck 以函数实现的检查（缓存 Ping、上游 HealthCheck 等）
type PingCheck struct {
	name string
	ping func(ctx context.Context) error
}

// NewPingCheck 创建检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

func (c *PingCheck) Name() string { return c.name }

func (c *PingCheck) Check(ctx context.Context) error { return c.ping(ctx) }
