package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/BaSui01/promptfusion/api"
	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// ModelLister 由 *synth.Synthesizer 实现
type ModelLister interface {
	AvailableModels(ctx context.Context) []string
}

// Enhancer 由 *prompt.Service 实现
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// CatalogHandler 处理特征词表、模型列表与提示词增强
type CatalogHandler struct {
	models   ModelLister
	enhancer Enhancer
	logger   *zap.Logger
}

// NewCatalogHandler 创建处理器
func NewCatalogHandler(models ModelLister, enhancer Enhancer, logger *zap.Logger) *CatalogHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogHandler{models: models, enhancer: enhancer, logger: logger}
}

// HandleFeatures 处理 GET /api/features/available
// @Summary 特征类别词表
// @Tags 分析
// @Produce json
// @Success 200 {object} api.FeaturesResponse "类别词表"
// @Router /api/features/available [get]
func (h *CatalogHandler) HandleFeatures(w http.ResponseWriter, r *http.Request) {
	features := make(map[string]api.FeatureType, len(feature.Categories))
	for _, c := range feature.Categories {
		features[c.ID] = api.FeatureType{
			Label:       c.Label,
			Description: c.Description,
			Descriptors: []string{},
		}
	}
	WriteResult(w, r, api.FeaturesResponse{Success: true, Features: features}, h.logger)
}

// HandleModels 处理 GET /api/models
// @Summary 可用生成模型
// @Tags 生成
// @Produce json
// @Success 200 {object} api.ModelsResponse "模型列表"
// @Router /api/models [get]
func (h *CatalogHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	models := h.models.AvailableModels(r.Context())
	if models == nil {
		models = []string{}
	}
	WriteResult(w, r, api.ModelsResponse{Success: true, Models: models}, h.logger)
}

// HandleEnhance 处理 POST /api/enhance
// @Summary 提示词增强
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.EnhanceRequest true "增强请求"
// @Success 200 {object} api.EnhanceResponse "增强结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 502 {object} Response "上游错误"
// @Router /api/enhance [post]
func (h *CatalogHandler) HandleEnhance(w http.ResponseWriter, r *http.Request) {
	var req api.EnhanceRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		WriteError(w, r, types.Validation("No prompt provided"), h.logger)
		return
	}

	enhanced, err := h.enhancer.Enhance(r.Context(), req.Prompt)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteResult(w, r, api.EnhanceResponse{
		Success:        true,
		Prompt:         enhanced,
		OriginalPrompt: req.Prompt,
	}, h.logger)
}
