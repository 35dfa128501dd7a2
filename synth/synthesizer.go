package synth

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/image"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// 后端名（封闭集合）
const (
	ModelDallE3    = "dall-e-3"
	ModelDallE2    = "dall-e-2"
	ModelDiffusion = "stable-diffusion"
	ModelImagen    = "imagen"
)

// Options 单次生成参数
type Options struct {
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
	Seed    *int64 `json:"seed,omitempty"`
}

// GenerateDefaults /api/generate 的默认参数
func GenerateDefaults() Options {
	return Options{Model: ModelDallE2, Size: "512x512", Quality: "standard"}
}

// InterpolateDefaults /api/interpolate 的默认参数
func InterpolateDefaults() Options {
	return Options{Model: ModelDallE3, Size: "1024x1024", Quality: "standard"}
}

// WithDefaults 用 def 填充空字段
func (o Options) WithDefaults(def Options) Options {
	if strings.TrimSpace(o.Model) == "" {
		o.Model = def.Model
	}
	if strings.TrimSpace(o.Size) == "" {
		o.Size = def.Size
	}
	if strings.TrimSpace(o.Quality) == "" {
		o.Quality = def.Quality
	}
	if o.Seed == nil {
		o.Seed = def.Seed
	}
	return o
}

// Metadata 生成结果元数据
type Metadata struct {
	Model     string `json:"model"`
	Size      string `json:"size"`
	Quality   string `json:"quality"`
	Timestamp string `json:"timestamp"`
	Seed      *int64 `json:"seed,omitempty"`
}

// Result 生成结果；URL 为上游地址或 data URI
type Result struct {
	Success  bool     `json:"success"`
	URL      string   `json:"url"`
	Prompt   string   `json:"prompt"`
	Metadata Metadata `json:"metadata"`
}

// Recorder 记录生成指标；*metrics.Collector 满足该接口
type Recorder interface {
	RecordGeneration(backend, status string)
	RecordUpstreamCall(service, model, status string, duration time.Duration)
}

// configurable 由能报告凭据/地址是否已配置的后端实现
type configurable interface {
	Configured() bool
}

// Option 配置 Synthesizer
type Option func(*Synthesizer)

// WithOpenAI 注册 dall-e-3 与 dall-e-2 共用的后端
func WithOpenAI(p image.Provider) Option { return func(s *Synthesizer) { s.openai = p } }

// WithDiffusion 注册本地扩散后端
func WithDiffusion(p image.Provider) Option { return func(s *Synthesizer) { s.diffusion = p } }

// WithImagen 注册 Imagen 后端；仅在已配置时加入模型集合
func WithImagen(p image.Provider) Option { return func(s *Synthesizer) { s.imagen = p } }

// WithRecorder 设置指标记录器
func WithRecorder(rec Recorder) Option { return func(s *Synthesizer) { s.rec = rec } }

// WithClock 替换时间源
func WithClock(now func() time.Time) Option { return func(s *Synthesizer) { s.now = now } }

// Synthesizer 图像生成入口，不做重试
type Synthesizer struct {
	openai    image.Provider
	diffusion image.Provider
	imagen    image.Provider
	rec       Recorder
	now       func() time.Time
	logger    *zap.Logger
}

// New 创建 Synthesizer
func New(logger *zap.Logger, opts ...Option) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Synthesizer{
		now:    time.Now,
		logger: logger.With(zap.String("component", "synthesizer")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Models 返回可接受的模型名（封闭集合）
func (s *Synthesizer) Models() []string {
	models := []string{ModelDallE3, ModelDallE2, ModelDiffusion}
	if configured(s.imagen) {
		models = append(models, ModelImagen)
	}
	return models
}

// CheckModel 在调用任何上游之前确认模型属于 Models()
func (s *Synthesizer) CheckModel(model string) error {
	model = strings.ToLower(strings.TrimSpace(model))
	models := s.Models()
	if slices.Contains(models, model) {
		return nil
	}
	return types.Unsupported(model, models)
}

// AvailableModels 返回当前真正可用的模型：DALL·E 需要 key，本地模型需要探测成功
func (s *Synthesizer) AvailableModels(ctx context.Context) []string {
	var models []string
	if configured(s.openai) {
		models = append(models, ModelDallE2, ModelDallE3)
	}
	if configured(s.diffusion) {
		if err := probe(ctx, s.diffusion); err == nil {
			models = append(models, ModelDiffusion)
		} else {
			s.logger.Debug("local diffusion runtime not available", zap.Error(err))
		}
	}
	if configured(s.imagen) {
		models = append(models, ModelImagen)
	}
	return models
}

// Generate 以 opts.Model 指定的后端生成一张图像。
// 未知模型在接触任何后端之前返回 UNSUPPORTED_BACKEND。
func (s *Synthesizer) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, types.Validation("prompt is required")
	}
	model := strings.ToLower(strings.TrimSpace(opts.Model))

	backend, err := s.backend(ctx, model)
	if err != nil {
		return nil, err
	}

	size := opts.Size
	if model == ModelDiffusion {
		resolved, substituted := ResolveSize(size)
		if substituted {
			s.logger.Warn("unsupported size for local model, using default",
				zap.String("requested", size), zap.String("size", resolved))
		}
		size = resolved
	}

	req := &image.GenerateRequest{
		Prompt:  prompt,
		Model:   model,
		N:       1,
		Size:    size,
		Quality: opts.Quality,
		Seed:    opts.Seed,
	}

	start := time.Now()
	resp, err := backend.Generate(ctx, req)
	duration := time.Since(start)
	if err == nil && (resp == nil || len(resp.Images) == 0 || resp.Images[0].Reference() == "") {
		err = errors.New("backend returned no image")
	}
	if err != nil {
		s.record(model, "error", duration)
		serr := llm.ServiceError(backend.Name(), err)
		s.logger.Error("image generation failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(serr))
		return nil, serr
	}
	s.record(model, "success", duration)

	img := resp.Images[0]
	meta := Metadata{
		Model:     model,
		Size:      size,
		Quality:   opts.Quality,
		Timestamp: s.now().UTC().Format(time.RFC3339),
	}
	if model == ModelDiffusion {
		seed := img.Seed
		meta.Seed = &seed
	}

	s.logger.Info("image generated",
		zap.String("model", model),
		zap.String("size", size),
		zap.Duration("duration", duration))

	return &Result{
		Success:  true,
		URL:      img.Reference(),
		Prompt:   prompt,
		Metadata: meta,
	}, nil
}

// backend 按模型名取后端并检查配置与可用性
func (s *Synthesizer) backend(ctx context.Context, model string) (image.Provider, error) {
	switch model {
	case ModelDallE3, ModelDallE2:
		if !configured(s.openai) {
			return nil, types.Unavailable(model, "set PROMPTFUSION_IMAGE_OPENAI_API_KEY to enable hosted generation")
		}
		return s.openai, nil
	case ModelDiffusion:
		if !configured(s.diffusion) {
			return nil, types.Unavailable(model,
				"set PROMPTFUSION_IMAGE_DIFFUSION_URL to a running AUTOMATIC1111-compatible runtime")
		}
		if err := probe(ctx, s.diffusion); err != nil {
			return nil, llm.ServiceError(s.diffusion.Name(), err)
		}
		return s.diffusion, nil
	case ModelImagen:
		if configured(s.imagen) {
			return s.imagen, nil
		}
	}
	return nil, types.Unsupported(model, s.Models())
}

func (s *Synthesizer) record(model, status string, duration time.Duration) {
	if s.rec == nil {
		return
	}
	s.rec.RecordGeneration(model, status)
	s.rec.RecordUpstreamCall("image", model, status, duration)
}

func configured(p image.Provider) bool {
	if p == nil {
		return false
	}
	if c, ok := p.(configurable); ok {
		return c.Configured()
	}
	return true
}

func probe(ctx context.Context, p image.Provider) error {
	if pr, ok := p.(image.Prober); ok {
		return pr.Available(ctx)
	}
	return nil
}
