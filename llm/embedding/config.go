package embedding

import "time"

// InputFormat 上游接受的多模态输入格式
type InputFormat string

const (
	// FormatJina: {"input":[{"image":"<b64>"}]} / {"input":[{"text":"..."}]}
	FormatJina InputFormat = "jina"
	// FormatInfinity: {"input":["data:image/png;base64,..."],"modality":"image"}
	FormatInfinity InputFormat = "infinity"
)

// ClipConfig configures the CLIP encoder.
type ClipConfig struct {
	Name    string        `json:"name,omitempty" yaml:"name,omitempty"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"` // jina-clip-v2
	Format  InputFormat   `json:"format,omitempty" yaml:"format,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// DefaultClipConfig returns default Jina CLIP config.
func DefaultClipConfig() ClipConfig {
	return ClipConfig{
		Name:    "jina-clip",
		BaseURL: "https://api.jina.ai",
		Model:   "jina-clip-v2",
		Format:  FormatJina,
		Timeout: 30 * time.Second,
	}
}
