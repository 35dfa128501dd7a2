package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/promptfusion/api"
	"github.com/BaSui01/promptfusion/interpolate"
	"github.com/BaSui01/promptfusion/synth"
	"go.uber.org/zap"
)

// FeatureInterpolator 由 *interpolate.Interpolator 实现
type FeatureInterpolator interface {
	Interpolate(ctx context.Context, in interpolate.Input, opts synth.Options) (*interpolate.Result, error)
}

// InterpolateHandler 特征插值处理器
type InterpolateHandler struct {
	interpolator FeatureInterpolator
	logger       *zap.Logger
}

// NewInterpolateHandler 创建特征插值处理器
func NewInterpolateHandler(interpolator FeatureInterpolator, logger *zap.Logger) *InterpolateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterpolateHandler{interpolator: interpolator, logger: logger}
}

// HandleInterpolate 处理 POST /api/interpolate
// @Summary 特征插值
// @Description 按权重混合多组特征，合成并润色提示词后生成图像
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.InterpolateRequest true "插值请求"
// @Success 200 {object} api.InterpolateResponse "插值结果"
// @Failure 400 {object} Response "正权重来源不足或权重越界"
// @Failure 502 {object} Response "上游错误"
// @Router /api/interpolate [post]
func (h *InterpolateHandler) HandleInterpolate(w http.ResponseWriter, r *http.Request) {
	var req api.InterpolateRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.interpolator.Interpolate(r.Context(), req.Features, req.Options())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteResult(w, r, res, h.logger)
}
