package embedding

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/BaSui01/promptfusion/llm"
)

// ClipProvider 通过 /v1/embeddings 调用 CLIP 类模型（Jina CLIP 或 Infinity 部署）.
type ClipProvider struct {
	client *jsonClient
	cfg    ClipConfig
}

// NewClipProvider 创建 CLIP 编码器.
func NewClipProvider(cfg ClipConfig) *ClipProvider {
	def := DefaultClipConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Format == "" {
		cfg.Format = FormatJina
	}
	return &ClipProvider{
		client: newJSONClient(cfg.Name, cfg.BaseURL, cfg.APIKey, cfg.Timeout),
		cfg:    cfg,
	}
}

// Name 返回提供者名称
func (p *ClipProvider) Name() string { return p.cfg.Name }

type jinaInput struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}

type jinaClipRequest struct {
	Model      string      `json:"model"`
	Input      []jinaInput `json:"input"`
	Normalized bool        `json:"normalized"`
}

type infinityRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Modality string   `json:"modality"`
}

type clipEmbedResponse struct {
	Model string `json:"model"`
	Data  []struct {
		Index     int       `json:"index"`
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// EmbedImage 生成图像向量.
func (p *ClipProvider) EmbedImage(ctx context.Context, image []byte) ([]float64, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%s: empty image", p.Name())
	}
	encoded := base64.StdEncoding.EncodeToString(image)

	var body any
	switch p.cfg.Format {
	case FormatInfinity:
		mime := http.DetectContentType(image)
		body = infinityRequest{
			Model:    p.cfg.Model,
			Input:    []string{"data:" + mime + ";base64," + encoded},
			Modality: "image",
		}
	default:
		body = jinaClipRequest{Model: p.cfg.Model, Input: []jinaInput{{Image: encoded}}, Normalized: true}
	}

	vecs, err := p.embed(ctx, body, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedTexts 批量生成文本向量.
func (p *ClipProvider) EmbedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var body any
	switch p.cfg.Format {
	case FormatInfinity:
		body = infinityRequest{Model: p.cfg.Model, Input: texts, Modality: "text"}
	default:
		inputs := make([]jinaInput, len(texts))
		for i, t := range texts {
			inputs[i] = jinaInput{Text: t}
		}
		body = jinaClipRequest{Model: p.cfg.Model, Input: inputs, Normalized: true}
	}
	return p.embed(ctx, body, len(texts))
}

func (p *ClipProvider) embed(ctx context.Context, body any, want int) ([][]float64, error) {
	var resp clipEmbedResponse
	if err := p.client.post(ctx, "/v1/embeddings", body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != want {
		return nil, p.client.badResponse("expected %d embeddings, got %d", want, len(resp.Data))
	}

	// 上游可能乱序返回
	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// HealthCheck 用一个极短文本探测服务可用性.
func (p *ClipProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if strings.TrimSpace(p.cfg.BaseURL) == "" {
		return &llm.HealthStatus{}, fmt.Errorf("%s: base url not configured", p.Name())
	}
	if _, err := p.EmbedTexts(ctx, []string{"ping"}); err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	return &llm.HealthStatus{Healthy: true}, nil
}
