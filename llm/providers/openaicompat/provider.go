package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/providers"
	"go.uber.org/zap"
)

const (
	defaultTimeout       = 30 * time.Second
	defaultChatPath      = "/v1/chat/completions"
	defaultModelsPath    = "/v1/models"
	defaultProviderName  = "openai"
	defaultFallbackModel = "gpt-4o-mini"
)

// Config 描述一个 OpenAI 兼容的聊天补全服务
type Config struct {
	ProviderName string // 日志、指标与错误中的标识，默认 "openai"
	APIKey       string // 为空表示未配置
	BaseURL      string

	DefaultModel  string // 请求未指定 model 时使用
	FallbackModel string // DefaultModel 也为空时使用

	Timeout        time.Duration // 默认 30s
	EndpointPath   string        // 默认 /v1/chat/completions
	ModelsEndpoint string        // 健康检查路径，默认 /v1/models

	// BuildHeaders 自定义认证头（如 Azure 的 api-key）；为空时使用 Bearer
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider 是 llm.Provider 的 OpenAI 兼容实现
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New 填充默认值并创建 Provider
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultChatPath
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = defaultModelsPath
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = defaultProviderName
	}
	if cfg.FallbackModel == "" {
		cfg.FallbackModel = defaultFallbackModel
	}
	if cfg.BuildHeaders == nil {
		cfg.BuildHeaders = providers.BearerTokenHeaders
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureHTTPClient(cfg.Timeout),
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

func (p *Provider) Name() string { return p.Cfg.ProviderName }

// Configured 是否设置了 API key
func (p *Provider) Configured() bool { return strings.TrimSpace(p.Cfg.APIKey) != "" }

// model 优先级：请求 > DefaultModel > FallbackModel
func (p *Provider) model(req *llm.ChatRequest) string {
	switch {
	case req.Model != "":
		return req.Model
	case p.Cfg.DefaultModel != "":
		return p.Cfg.DefaultModel
	default:
		return p.Cfg.FallbackModel
	}
}

func (p *Provider) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	url := strings.TrimRight(p.Cfg.BaseURL, "/") + path
	var r *http.Request
	var err error
	if body != nil {
		r, err = http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	} else {
		r, err = http.NewRequestWithContext(ctx, method, url, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	p.Cfg.BuildHeaders(r, p.Cfg.APIKey)
	return r, nil
}

func (p *Provider) unavailable() *llm.Error {
	return &llm.Error{
		Code:       llm.ErrProviderUnavailable,
		Message:    p.Name() + " API key is not configured",
		HTTPStatus: http.StatusServiceUnavailable,
		Provider:   p.Name(),
	}
}

// HealthCheck 请求模型列表端点
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if !p.Configured() {
		return &llm.HealthStatus{}, p.unavailable()
	}
	r, err := p.newRequest(ctx, http.MethodGet, p.Cfg.ModelsEndpoint, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Client.Do(r)
	status := &llm.HealthStatus{Latency: time.Since(start)}
	if err != nil {
		return status, providers.NetworkError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return status, fmt.Errorf("%s health check failed: status=%d msg=%s",
			p.Name(), resp.StatusCode, providers.ReadErrorMessage(resp.Body))
	}
	status.Healthy = true
	return status, nil
}

// Completion 发起一次非流式聊天补全
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if req == nil || len(req.Messages) == 0 {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    "chat request has no messages",
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}
	if !p.Configured() {
		return nil, p.unavailable()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	model := p.model(req)
	payload, err := json.Marshal(newWireRequest(model, req))
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.Name(), err)
	}
	r, err := p.newRequest(ctx, http.MethodPost, p.Cfg.EndpointPath, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.Client.Do(r)
	if err != nil {
		p.Logger.Warn("chat completion transport error",
			zap.String("model", model), zap.Duration("latency", time.Since(start)), zap.Error(err))
		return nil, providers.NetworkError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Warn("chat completion rejected",
			zap.String("model", model), zap.Int("status", resp.StatusCode), zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, providers.NetworkError(fmt.Errorf("decode completion: %w", err), p.Name())
	}
	out := wire.toChatResponse(p.Name(), model)
	p.Logger.Debug("chat completion done",
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)))
	return out, nil
}
