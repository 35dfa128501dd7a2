package image

import "time"

// OpenAIConfig 配置 OpenAI DALL·E 后端.
type OpenAIConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // dall-e-3, dall-e-2
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DiffusionConfig 配置本地 Stable Diffusion（AUTOMATIC1111 WebUI API）.
type DiffusionConfig struct {
	BaseURL      string        `json:"base_url" yaml:"base_url"` // 为空表示未安装
	Sampler      string        `json:"sampler,omitempty" yaml:"sampler,omitempty"`
	Timeout      time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ProbeTimeout time.Duration `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty"`
}

// ImagenConfig 配置 Google Imagen 后端.
type ImagenConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // imagen-4.0-generate-001
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultOpenAIConfig 返回默认 OpenAI 图像配置.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		BaseURL: "https://api.openai.com",
		Model:   "dall-e-3",
		Timeout: 120 * time.Second,
	}
}

// DefaultDiffusionConfig 返回默认本地 Stable Diffusion 配置（未配置 URL）.
func DefaultDiffusionConfig() DiffusionConfig {
	return DiffusionConfig{
		Sampler:      "Euler a",
		Timeout:      300 * time.Second,
		ProbeTimeout: 3 * time.Second,
	}
}

// DefaultImagenConfig 返回默认 Imagen 配置.
func DefaultImagenConfig() ImagenConfig {
	return ImagenConfig{
		Model:   "imagen-4.0-generate-001",
		Timeout: 120 * time.Second,
	}
}
