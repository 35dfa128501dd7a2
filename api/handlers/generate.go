package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/promptfusion/api"
	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/synth"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// Refiner 由 *prompt.Service 实现
type Refiner interface {
	Refine(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator 由 *synth.Synthesizer 实现
type ImageGenerator interface {
	CheckModel(model string) error
	Generate(ctx context.Context, prompt string, opts synth.Options) (*synth.Result, error)
}

// Describer 由 *analysis.Analyzer 实现
type Describer interface {
	Describe(ctx context.Context, prompt string) (feature.FeatureSet, error)
}

// GenerateHandler 图像生成处理器：润色 → 生成 → 回显分析
type GenerateHandler struct {
	refiner   Refiner
	generator ImageGenerator
	describer Describer
	logger    *zap.Logger
}

// NewGenerateHandler 创建图像生成处理器；describer 可为 nil
func NewGenerateHandler(refiner Refiner, generator ImageGenerator, describer Describer, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{refiner: refiner, generator: generator, describer: describer, logger: logger}
}

// HandleGenerate 处理 POST /api/generate
// @Summary 生成图像
// @Description 先润色提示词，再调用指定后端生成图像，并返回润色后提示词的特征分析
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.GenerateRequest true "生成请求"
// @Success 200 {object} api.GenerateResponse "生成结果"
// @Failure 400 {object} Response "请求无效或模型不受支持"
// @Failure 502 {object} Response "上游错误"
// @Failure 503 {object} Response "后端不可用"
// @Router /api/generate [post]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteError(w, r, types.Validation("No prompt provided"), h.logger)
		return
	}
	opts := req.Options().WithDefaults(synth.GenerateDefaults())
	if err := h.generator.CheckModel(opts.Model); err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	refined, err := h.refiner.Refine(r.Context(), req.Prompt)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	h.logger.Info("generating image",
		zap.String("model", opts.Model),
		zap.String("size", opts.Size),
		zap.String("prompt", refined))

	res, err := h.generator.Generate(r.Context(), refined, opts)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteResult(w, r, api.GenerateResponse{
		Success:        true,
		URL:            res.URL,
		Prompt:         res.Prompt,
		OriginalPrompt: req.Prompt,
		Metadata:       res.Metadata,
		Analysis:       describe(r.Context(), h.describer, res.Prompt, h.logger),
	}, h.logger)
}

// describe 分析仅供回显：失败或为空时返回 {}
func describe(ctx context.Context, d Describer, prompt string, logger *zap.Logger) feature.FeatureSet {
	if d == nil {
		return feature.FeatureSet{}
	}
	fs, err := d.Describe(ctx, prompt)
	if err != nil {
		logger.Warn("analysis of generated prompt failed, returning empty analysis", zap.Error(err))
		return feature.FeatureSet{}
	}
	if fs == nil {
		return feature.FeatureSet{}
	}
	return fs
}
