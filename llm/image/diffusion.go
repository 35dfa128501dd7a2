package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/providers"
)

// =============================================================================
// 🎨 本地 Stable Diffusion（AUTOMATIC1111 WebUI API）
// =============================================================================

const (
	// DefaultNegativePrompt 固定负向提示词，规避常见瑕疵
	DefaultNegativePrompt = "blurry, low quality, distorted, ugly, bad anatomy, bad hands, bad proportions, " +
		"poorly drawn, deformed, mutated, extra limbs, missing limbs, watermark, signature, text"
	DefaultDiffusionSteps    = 20
	DefaultDiffusionCFGScale = 7.5
	DefaultDiffusionSize     = "512x512"
)

// SupportedDiffusionSizes 本地模型支持的尺寸集合
var SupportedDiffusionSizes = []string{"512x512", "768x768", "512x768", "768x512", "1024x1024"}

// ResolveDiffusionSize 把请求尺寸约束到支持集合，并将每个维度向下取整到 8 的倍数。
// 不在集合中的尺寸（含无法解析的）替换为 512x512，substituted 为 true。
func ResolveDiffusionSize(size string) (width, height int, substituted bool) {
	chosen := strings.ToLower(strings.TrimSpace(size))
	supported := false
	for _, s := range SupportedDiffusionSizes {
		if s == chosen {
			supported = true
			break
		}
	}
	if !supported {
		chosen = DefaultDiffusionSize
		substituted = true
	}
	w, h, _ := parseSize(chosen)
	return w / 8 * 8, h / 8 * 8, substituted
}

func parseSize(size string) (int, int, bool) {
	ws, hs, ok := strings.Cut(size, "x")
	if !ok {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(ws)
	h, err2 := strconv.Atoi(hs)
	if err1 != nil || err2 != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// DiffusionProvider 调用 AUTOMATIC1111 兼容的 txt2img 接口.
type DiffusionProvider struct {
	cfg    DiffusionConfig
	client *http.Client
	probe  *http.Client
	seedFn func() int64
}

// NewDiffusionProvider 创建本地 Stable Diffusion 后端.
func NewDiffusionProvider(cfg DiffusionConfig) *DiffusionProvider {
	def := DefaultDiffusionConfig()
	if cfg.Sampler == "" {
		cfg.Sampler = def.Sampler
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = def.ProbeTimeout
	}
	return &DiffusionProvider{
		cfg:    cfg,
		client: tlsutil.LocalHTTPClient(cfg.Timeout),
		probe:  tlsutil.LocalHTTPClient(cfg.ProbeTimeout),
		seedFn: func() int64 { return rand.Int64N(1 << 32) },
	}
}

func (p *DiffusionProvider) Name() string { return "stable-diffusion" }

// Configured reports whether a runtime URL is set.
func (p *DiffusionProvider) Configured() bool { return strings.TrimSpace(p.cfg.BaseURL) != "" }

func (p *DiffusionProvider) endpoint(path string) string {
	return strings.TrimRight(p.cfg.BaseURL, "/") + path
}

func (p *DiffusionProvider) unavailable(msg string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrProviderUnavailable,
		Message:    msg,
		HTTPStatus: http.StatusServiceUnavailable,
		Provider:   p.Name(),
	}
}

// Available 探测运行时：URL 未配置或 GET /sdapi/v1/sd-models 失败均视为不可用.
func (p *DiffusionProvider) Available(ctx context.Context) error {
	if !p.Configured() {
		return p.unavailable("local diffusion runtime URL is not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint("/sdapi/v1/sd-models"), nil)
	if err != nil {
		return p.unavailable(err.Error())
	}
	resp, err := p.probe.Do(req)
	if err != nil {
		return p.unavailable(fmt.Sprintf("local diffusion runtime unreachable: %v", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return p.unavailable(fmt.Sprintf("local diffusion runtime probe failed: status=%d", resp.StatusCode))
	}
	return nil
}

type txt2imgRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Steps          int     `json:"steps"`
	CFGScale       float64 `json:"cfg_scale"`
	Seed           int64   `json:"seed"`
	SamplerName    string  `json:"sampler_name,omitempty"`
	BatchSize      int     `json:"batch_size"`
}

type txt2imgResponse struct {
	Images []string `json:"images"`
	Info   string   `json:"info"`
}

// Generate 执行 txt2img。尺寸需由调用方先经过 ResolveDiffusionSize；
// 这里仍做一次向下取整以保证 8 的倍数。
func (p *DiffusionProvider) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if !p.Configured() {
		return nil, p.unavailable("local diffusion runtime URL is not configured")
	}

	w, h, _ := ResolveDiffusionSize(req.Size)
	seed := p.seedFn()
	if req.Seed != nil {
		seed = *req.Seed
	}
	negative := req.NegativePrompt
	if negative == "" {
		negative = DefaultNegativePrompt
	}
	steps := req.Steps
	if steps <= 0 {
		steps = DefaultDiffusionSteps
	}
	cfgScale := req.CFGScale
	if cfgScale <= 0 {
		cfgScale = DefaultDiffusionCFGScale
	}

	body := txt2imgRequest{
		Prompt:         req.Prompt,
		NegativePrompt: negative,
		Width:          w,
		Height:         h,
		Steps:          steps,
		CFGScale:       cfgScale,
		Seed:           seed,
		SamplerName:    p.cfg.Sampler,
		BatchSize:      1,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint("/sdapi/v1/txt2img"), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.NetworkError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var out txt2imgResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, providers.NetworkError(fmt.Errorf("failed to decode txt2img response: %w", err), p.Name())
	}
	if len(out.Images) == 0 {
		return nil, providers.NetworkError(fmt.Errorf("txt2img returned no images"), p.Name())
	}

	// WebUI 返回的 base64 偶尔带 data URI 前缀
	b64 := out.Images[0]
	if i := strings.Index(b64, ","); strings.HasPrefix(b64, "data:") && i >= 0 {
		b64 = b64[i+1:]
	}
	if _, err := base64.StdEncoding.DecodeString(b64); err != nil {
		return nil, providers.NetworkError(fmt.Errorf("txt2img returned invalid base64: %w", err), p.Name())
	}

	return &GenerateResponse{
		Provider: p.Name(),
		Model:    p.Name(),
		Images: []ImageData{{
			B64JSON:  b64,
			MIMEType: "image/png",
			Seed:     seed,
			Width:    w,
			Height:   h,
		}},
		CreatedAt: time.Now(),
	}, nil
}
