package prompt

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// Config 改写调用参数
type Config struct {
	Model            string        `yaml:"model" json:"model"`
	Temperature      float32       `yaml:"temperature" json:"temperature"`
	MaxTokens        int           `yaml:"max_tokens" json:"max_tokens"`
	EnhanceMaxTokens int           `yaml:"enhance_max_tokens" json:"enhance_max_tokens"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Model:            "gpt-4o-mini",
		Temperature:      0.7,
		MaxTokens:        200,
		EnhanceMaxTokens: 500,
		Timeout:          30 * time.Second,
	}
}

// Service 提示词改写服务
type Service struct {
	provider llm.Provider
	cfg      Config
	logger   *zap.Logger
}

// NewService 创建改写服务
func NewService(provider llm.Provider, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.EnhanceMaxTokens == 0 {
		cfg.EnhanceMaxTokens = def.EnhanceMaxTokens
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "prompt")),
	}
}

// Refine /api/generate 前的单次润色
func (s *Service) Refine(ctx context.Context, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", types.Validation("prompt must be a non-empty string")
	}
	return s.complete(ctx, "refine", refineSystemPrompt(userPrompt), refineUserMessage, s.cfg.MaxTokens)
}

// Compose 将渲染好的特征子句合成为一句图像描述
func (s *Service) Compose(ctx context.Context, clauses []string) (string, error) {
	if len(clauses) == 0 {
		return "", types.Validation("no feature clauses to compose")
	}
	return s.complete(ctx, "compose", composeSystemPrompt(JoinClauses(clauses)), composeUserMessage, s.cfg.MaxTokens)
}

// RefineComposed 对合成结果做第二次润色
func (s *Service) RefineComposed(ctx context.Context, base string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", types.Validation("base prompt is empty")
	}
	return s.complete(ctx, "refine_composed", refineComposedSystemPrompt(base), refineUserMessage, s.cfg.MaxTokens)
}

// Enhance 增强提示词细节，保持原意
func (s *Service) Enhance(ctx context.Context, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", types.Validation("prompt must be a non-empty string")
	}
	return s.complete(ctx, "enhance", enhanceSystemPrompt, userPrompt, s.cfg.EnhanceMaxTokens)
}

// JoinClauses 以 "; " 连接子句并保留末尾分隔符
func JoinClauses(clauses []string) string {
	var b strings.Builder
	for _, c := range clauses {
		b.WriteString(c)
		b.WriteString("; ")
	}
	return strings.TrimSpace(b.String())
}

func (s *Service) complete(ctx context.Context, op, system, user string, maxTokens int) (string, error) {
	if s.provider == nil {
		return "", types.Unavailable("llm", "completion service is not configured")
	}
	req := &llm.ChatRequest{
		Model:       s.cfg.Model,
		Messages:    llm.SystemUser(system, user),
		MaxTokens:   maxTokens,
		Temperature: s.cfg.Temperature,
		Timeout:     s.cfg.Timeout,
	}
	if id, ok := types.TraceID(ctx); ok {
		req.TraceID = id
	}

	resp, err := s.provider.Completion(ctx, req)
	if err != nil {
		s.logger.Error("completion failed", zap.String("op", op), zap.Error(err))
		return "", llm.ServiceError(s.provider.Name(), err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", types.Upstream(s.provider.Name(), errors.New("empty completion"))
	}
	s.logger.Debug("completion done", zap.String("op", op), zap.Int("chars", len(text)))
	return text, nil
}
