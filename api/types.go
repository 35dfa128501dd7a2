package api

import (
	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/interpolate"
	"github.com/BaSui01/promptfusion/synth"
)

// =============================================================================
// 🔍 分析
// =============================================================================

// AnalyzeRequest 特征分析请求
type AnalyzeRequest struct {
	// 待分析的提示词
	Prompt string `json:"prompt" example:"a stormy ocean at sunset"`
	// 可选图像：裸 base64 或 data URI
	ImageData string `json:"image_data,omitempty"`
}

// AnalyzeResponse 特征分析响应
type AnalyzeResponse struct {
	Success          bool               `json:"success"`
	Analysis         feature.FeatureSet `json:"analysis"`
	ActiveCategories []string           `json:"active_categories"`
	Message          string             `json:"message"`
}

// =============================================================================
// 🎨 生成
// =============================================================================

// GenerateRequest 图像生成请求
type GenerateRequest struct {
	Prompt  string `json:"prompt"`
	Model   string `json:"model,omitempty" example:"dall-e-2"`
	Size    string `json:"size,omitempty" example:"512x512"`
	Quality string `json:"quality,omitempty" example:"standard"`
	// 仅本地模型使用；缺省时随机
	Seed *int64 `json:"seed,omitempty"`
}

// Options 转换为生成参数
func (r GenerateRequest) Options() synth.Options {
	return synth.Options{Model: r.Model, Size: r.Size, Quality: r.Quality, Seed: r.Seed}
}

// GenerateResponse 图像生成响应
type GenerateResponse struct {
	Success        bool               `json:"success"`
	URL            string             `json:"url"`
	Prompt         string             `json:"prompt"`
	OriginalPrompt string             `json:"original_prompt"`
	Metadata       synth.Metadata     `json:"metadata"`
	Analysis       feature.FeatureSet `json:"analysis"`
}

// =============================================================================
// 🔀 插值
// =============================================================================

// InterpolateRequest 特征插值请求
type InterpolateRequest struct {
	Features interpolate.Input `json:"features"`
	Model    string            `json:"model,omitempty" example:"dall-e-3"`
	Size     string            `json:"size,omitempty" example:"1024x1024"`
	Quality  string            `json:"quality,omitempty" example:"standard"`
	Seed     *int64            `json:"seed,omitempty"`
}

// Options 转换为生成参数
func (r InterpolateRequest) Options() synth.Options {
	return synth.Options{Model: r.Model, Size: r.Size, Quality: r.Quality, Seed: r.Seed}
}

// InterpolateResponse 即 interpolate.Result
type InterpolateResponse = interpolate.Result

// =============================================================================
// ✨ 其他
// =============================================================================

// EnhanceRequest 提示词增强请求
type EnhanceRequest struct {
	Prompt string `json:"prompt"`
}

// EnhanceResponse 提示词增强响应
type EnhanceResponse struct {
	Success        bool   `json:"success"`
	Prompt         string `json:"prompt"`
	OriginalPrompt string `json:"original_prompt"`
}

// ProxyImageRequest 图片代理请求
type ProxyImageRequest struct {
	URL string `json:"url"`
}

// FeatureType 单个特征类别的描述
type FeatureType struct {
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Descriptors []string `json:"descriptors"`
}

// FeaturesResponse /api/features/available 响应
type FeaturesResponse struct {
	Success  bool                   `json:"success"`
	Features map[string]FeatureType `json:"features"`
}

// ModelsResponse /api/models 响应
type ModelsResponse struct {
	Success bool     `json:"success"`
	Models  []string `json:"models"`
}
