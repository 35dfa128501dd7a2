package image

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/providers"
	"google.golang.org/genai"
)

// imagesAPI 是 genai.Models 中本包用到的子集
type imagesAPI interface {
	GenerateImages(ctx context.Context, model, prompt string, config *genai.GenerateImagesConfig) (*genai.GenerateImagesResponse, error)
}

// ImagenProvider 通过 Google GenAI SDK 调用 Imagen.
type ImagenProvider struct {
	cfg ImagenConfig

	once    sync.Once
	api     imagesAPI
	initErr error
}

// NewImagenProvider 创建 Imagen 后端；客户端在首次调用时惰性初始化.
func NewImagenProvider(cfg ImagenConfig) *ImagenProvider {
	def := DefaultImagenConfig()
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return &ImagenProvider{cfg: cfg}
}

func (p *ImagenProvider) Name() string { return "imagen" }

// Configured reports whether an API key is set.
func (p *ImagenProvider) Configured() bool { return strings.TrimSpace(p.cfg.APIKey) != "" }

func (p *ImagenProvider) client(ctx context.Context) (imagesAPI, error) {
	p.once.Do(func() {
		if p.api != nil {
			return
		}
		c, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:     p.cfg.APIKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: tlsutil.SecureHTTPClient(p.cfg.Timeout),
		})
		if err != nil {
			p.initErr = err
			return
		}
		p.api = c.Models
	})
	return p.api, p.initErr
}

// aspectRatio 把 WxH 映射到 Imagen 支持的宽高比
func aspectRatio(size string) string {
	w, h, ok := parseSize(size)
	switch {
	case !ok || w == h:
		return "1:1"
	case w*4 == h*3:
		return "3:4"
	case w*3 == h*4:
		return "4:3"
	case w*16 == h*9:
		return "9:16"
	case w*9 == h*16:
		return "16:9"
	case w < h:
		return "3:4"
	default:
		return "4:3"
	}
}

// Generate 单次 GenerateImages 调用，结果以 data URI 形式返回.
func (p *ImagenProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if !p.Configured() {
		return nil, &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    "Imagen API key is not configured",
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   p.Name(),
		}
	}
	api, err := p.client(ctx)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrProviderUnavailable,
			Message:    fmt.Sprintf("init genai client: %v", err),
			HTTPStatus: http.StatusServiceUnavailable,
			Provider:   p.Name(),
		}
	}

	model := p.cfg.Model
	cfg := &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspectRatio(req.Size),
	}
	if req.NegativePrompt != "" {
		cfg.NegativePrompt = req.NegativePrompt
	}

	resp, err := api.GenerateImages(ctx, model, req.Prompt, cfg)
	if err != nil {
		return nil, mapGenAIError(err, p.Name())
	}
	if resp == nil || len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, providers.NetworkError(fmt.Errorf("imagen returned no images"), p.Name())
	}

	img := resp.GeneratedImages[0]
	mime := img.Image.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &GenerateResponse{
		Provider: p.Name(),
		Model:    model,
		Images: []ImageData{{
			B64JSON:  base64.StdEncoding.EncodeToString(img.Image.ImageBytes),
			MIMEType: mime,
		}},
		CreatedAt: time.Now(),
	}, nil
}

// mapGenAIError 把 SDK 的 APIError 还原为 HTTP 状态映射
func mapGenAIError(err error, provider string) *llm.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code > 0 {
		return providers.MapHTTPError(apiErr.Code, apiErr.Message, provider)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code > 0 {
		return providers.MapHTTPError(apiErrPtr.Code, apiErrPtr.Message, provider)
	}
	return providers.NetworkError(err, provider)
}
