package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/promptfusion/analysis"
	"github.com/BaSui01/promptfusion/api"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// FeatureAnalyzer 由 *analysis.Analyzer 实现
type FeatureAnalyzer interface {
	Analyze(ctx context.Context, prompt, imagePayload string) (*analysis.Result, error)
}

// AnalyzeHandler 特征分析处理器
type AnalyzeHandler struct {
	analyzer FeatureAnalyzer
	logger   *zap.Logger
}

// NewAnalyzeHandler 创建特征分析处理器
func NewAnalyzeHandler(analyzer FeatureAnalyzer, logger *zap.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyzeHandler{analyzer: analyzer, logger: logger}
}

// HandleAnalyze 处理 POST /api/analyze
// @Summary 特征分析
// @Description 将提示词与可选图像解析为带权特征集
// @Tags 分析
// @Accept json
// @Produce json
// @Param request body api.AnalyzeRequest true "分析请求"
// @Success 200 {object} api.AnalyzeResponse "分析结果"
// @Failure 400 {object} Response "请求无效"
// @Failure 422 {object} Response "未得到任何特征"
// @Failure 502 {object} Response "上游错误"
// @Router /api/analyze [post]
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Prompt == "" {
		WriteError(w, r, types.Validation("No prompt provided"), h.logger)
		return
	}

	h.logger.Info("analyzing prompt",
		zap.Int("prompt_len", len(req.Prompt)),
		zap.Bool("has_image", req.ImageData != ""))

	res, err := h.analyzer.Analyze(r.Context(), req.Prompt, req.ImageData)
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}

	WriteResult(w, r, api.AnalyzeResponse{
		Success:          true,
		Analysis:         res.Analysis,
		ActiveCategories: res.ActiveCategories,
		Message:          "Analysis completed successfully",
	}, h.logger)
}
