package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/providers"
)

const (
	dalleGenerationsPath = "/v1/images/generations"
	dalleDefaultSize     = "1024x1024"
	dalle3               = "dall-e-3"
)

// OpenAIProvider 调用 DALL·E 图像生成接口
type OpenAIProvider struct {
	cfg    OpenAIConfig
	client *http.Client
}

// NewOpenAIProvider 未填写的字段取 DefaultOpenAIConfig
func NewOpenAIProvider(cfg OpenAIConfig) *OpenAIProvider {
	def := DefaultOpenAIConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &OpenAIProvider{cfg: cfg, client: tlsutil.SecureHTTPClient(cfg.Timeout)}
}

func (p *OpenAIProvider) Name() string { return "openai-image" }

// Configured 是否设置了 API key
func (p *OpenAIProvider) Configured() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

type dalleRequest struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	N       int    `json:"n"`
	Size    string `json:"size,omitempty"`
	Quality string `json:"quality,omitempty"`
}

type dalleImage struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
}

type dalleResponse struct {
	Created int64        `json:"created"`
	Data    []dalleImage `json:"data"`
}

// newDalleRequest 每次只要一张图；quality 只有 dall-e-3 接受
func newDalleRequest(model string, req *GenerateRequest) dalleRequest {
	out := dalleRequest{Model: model, Prompt: req.Prompt, N: 1, Size: req.Size}
	if out.Size == "" {
		out.Size = dalleDefaultSize
	}
	if model == dalle3 {
		out.Quality = req.Quality
	}
	return out
}

// Generate 调用 /v1/images/generations
func (p *OpenAIProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if !p.Configured() {
		return nil, &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    "OpenAI API key is not configured",
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   p.Name(),
		}
	}
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	payload, err := json.Marshal(newDalleRequest(model, req))
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", p.Name(), err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(p.cfg.BaseURL, "/")+dalleGenerationsPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", p.Name(), err)
	}
	providers.BearerTokenHeaders(httpReq, p.cfg.APIKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.NetworkError(err, p.Name())
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var decoded dalleResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, providers.NetworkError(fmt.Errorf("decode images response: %w", err), p.Name())
	}
	if len(decoded.Data) == 0 {
		return nil, providers.NetworkError(fmt.Errorf("images response contained no data"), p.Name())
	}
	return decoded.toResponse(p.Name(), model), nil
}

func (d dalleResponse) toResponse(provider, model string) *GenerateResponse {
	out := &GenerateResponse{
		Provider:  provider,
		Model:     model,
		Images:    make([]ImageData, len(d.Data)),
		CreatedAt: time.Now(),
	}
	if d.Created != 0 {
		out.CreatedAt = time.Unix(d.Created, 0)
	}
	for i, img := range d.Data {
		out.Images[i] = ImageData{URL: img.URL, B64JSON: img.B64JSON, RevisedPrompt: img.RevisedPrompt}
	}
	return out
}
