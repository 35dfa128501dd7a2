package analysis

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/BaSui01/promptfusion/types"
	_ "golang.org/x/image/webp"
)

// DecodedImage 解码后的图像载荷
type DecodedImage struct {
	Bytes  []byte
	Format string // png / jpeg / gif / webp
	Width  int
	Height int
}

// DecodeImage 解析图像载荷：data URI、裸 base64（标准或无填充）或原始字节。
// 结果必须能被识别为位图，否则返回 ImageDecodeError。
func DecodeImage(payload string) (*DecodedImage, error) {
	if payload == "" {
		return nil, types.ImageDecode(errors.New("empty image payload"))
	}

	raw, err := payloadBytes(payload)
	if err != nil {
		return nil, types.ImageDecode(err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, types.ImageDecode(err)
	}
	return &DecodedImage{Bytes: raw, Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

func payloadBytes(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		idx := strings.IndexByte(payload, ',')
		if idx < 0 {
			return nil, errors.New("data URI has no payload")
		}
		return decodeBase64(strings.TrimSpace(payload[idx+1:]))
	}
	if b, err := decodeBase64(strings.TrimSpace(payload)); err == nil {
		return b, nil
	}
	return []byte(payload), nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(s)
}

// MIMEType 返回格式对应的 MIME 类型
func (d *DecodedImage) MIMEType() string {
	return "image/" + d.Format
}
