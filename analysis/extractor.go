package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/tokenizer"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// ExtractorConfig 特征抽取参数
type ExtractorConfig struct {
	Model           string        `yaml:"model" json:"model"`
	Temperature     float32       `yaml:"temperature" json:"temperature"`
	MaxTokens       int           `yaml:"max_tokens" json:"max_tokens"`
	MaxPromptTokens int           `yaml:"max_prompt_tokens" json:"max_prompt_tokens"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultExtractorConfig 返回默认抽取参数
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		Model:           "gpt-4o-mini",
		Temperature:     0.3,
		MaxTokens:       1000,
		MaxPromptTokens: 2000,
		Timeout:         30 * time.Second,
	}
}

// Extractor 通过补全服务抽取提示词中的视觉特征
type Extractor struct {
	provider  llm.Provider
	tokenizer tokenizer.Tokenizer
	cfg       ExtractorConfig
	logger    *zap.Logger
}

// NewExtractor 创建特征抽取器
func NewExtractor(provider llm.Provider, cfg ExtractorConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultExtractorConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.MaxPromptTokens == 0 {
		cfg.MaxPromptTokens = def.MaxPromptTokens
	}
	return &Extractor{
		provider:  provider,
		tokenizer: tokenizer.ForModel(cfg.Model),
		cfg:       cfg,
		logger:    logger.With(zap.String("component", "extractor")),
	}
}

// Extract 返回提示词的特征集。
// 补全无法解析或全部条目被丢弃时返回空集与 nil（软失败）；传输/HTTP 失败为 UpstreamError。
func (e *Extractor) Extract(ctx context.Context, prompt string) (feature.FeatureSet, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, types.Validation("prompt must be a non-empty string")
	}
	if err := e.checkLength(prompt); err != nil {
		return nil, err
	}
	if e.provider == nil {
		return nil, types.Unavailable("llm", "completion service is not configured")
	}

	req := &llm.ChatRequest{
		Model:       e.cfg.Model,
		Messages:    llm.SystemUser(extractionInstruction(), prompt),
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Timeout:     e.cfg.Timeout,
	}
	if id, ok := types.TraceID(ctx); ok {
		req.TraceID = id
	}

	resp, err := e.provider.Completion(ctx, req)
	if err != nil {
		return nil, llm.ServiceError(e.provider.Name(), err)
	}

	res := feature.ParseCompletion(resp.Text())
	for _, d := range res.Dropped {
		e.logger.Warn("dropped feature entry",
			zap.String("category", d.Category),
			zap.String("term", d.Term),
			zap.String("reason", string(d.Reason)),
			zap.String("raw", d.Raw),
		)
	}
	if !res.OK() {
		e.logger.Warn("completion could not be parsed as features",
			zap.String("code", string(types.ErrParse)),
			zap.Error(res.Err),
		)
		return feature.FeatureSet{}, nil
	}
	for category := range res.Features {
		if !feature.IsKnownCategory(category) {
			e.logger.Debug("keeping category outside vocabulary", zap.String("category", category))
		}
	}
	return res.Features, nil
}

func (e *Extractor) checkLength(prompt string) error {
	if e.cfg.MaxPromptTokens <= 0 {
		return nil
	}
	n, err := e.tokenizer.CountTokens(prompt)
	if err != nil {
		e.logger.Warn("token count unavailable, skipping ceiling", zap.Error(err))
		return nil
	}
	if n > e.cfg.MaxPromptTokens {
		return types.Validation("prompt is too long: %d tokens exceeds limit of %d", n, e.cfg.MaxPromptTokens)
	}
	return nil
}

// extractionInstruction 固定的抽取指令，类别列表取自词表
func extractionInstruction() string {
	var b strings.Builder
	b.WriteString(`Analyze the visual elements in the following prompt.

Output Format Requirements:
1. Return ONLY a JSON object
2. Each category should contain terms with single numerical confidence scores
3. Confidence scores must be between 0.0 and 1.0
4. Do NOT use lists or complex objects for scores

Example of CORRECT format:
{
    "color": {
        "deep blue": 0.9,
        "golden": 0.7
    },
    "style": {
        "impressionist": 0.8
    }
}

Categories to analyze:
`)
	for _, c := range feature.Categories {
		fmt.Fprintf(&b, "- %s (%s)\n", c.ID, c.Description)
	}
	b.WriteString(`
Rules:
1. Include ONLY categories where features are clearly present
2. Each term MUST have a single numeric score (0.0-1.0)
3. Be specific and precise in terminology
4. Focus on visual and artistic aspects
5. Return valid JSON only
`)
	return b.String()
}
