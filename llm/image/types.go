package image

import (
	"context"
	"encoding/base64"
	"time"
)

// GenerateRequest 图像生成请求
type GenerateRequest struct {
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt,omitempty"`
	Model          string  `json:"model,omitempty"`
	N              int     `json:"n,omitempty"`
	Size           string  `json:"size,omitempty"`    // 1024x1024, 512x768, ...
	Quality        string  `json:"quality,omitempty"` // standard, hd
	Seed           *int64  `json:"seed,omitempty"`    // nil 表示随机
	Steps          int     `json:"steps,omitempty"`
	CFGScale       float64 `json:"cfg_scale,omitempty"`
}

// GenerateResponse 图像生成响应
type GenerateResponse struct {
	Provider  string      `json:"provider"`
	Model     string      `json:"model"`
	Images    []ImageData `json:"images"`
	CreatedAt time.Time   `json:"created_at"`
}

// ImageData 单张生成结果：URL 或内联字节二选一
type ImageData struct {
	URL           string `json:"url,omitempty"`
	B64JSON       string `json:"b64_json,omitempty"`
	MIMEType      string `json:"mime_type,omitempty"`
	RevisedPrompt string `json:"revised_prompt,omitempty"`
	Seed          int64  `json:"seed,omitempty"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

// Reference 返回客户端可直接使用的引用：上游 URL 原样返回，内联数据包装为 data URI
func (d ImageData) Reference() string {
	if d.URL != "" {
		return d.URL
	}
	if d.B64JSON == "" {
		return ""
	}
	mime := d.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + d.B64JSON
}

// DataURI 把原始字节编码为 data URI
func DataURI(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// Provider 图像生成后端
type Provider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	Name() string
}

// Prober 由需要运行时探测的后端实现
type Prober interface {
	Available(ctx context.Context) error
}
