// Package embedding 提供 CLIP 类视觉-文本向量模型的统一接口和实现.
package embedding

import (
	"context"
	"errors"
	"math"
)

// Encoder 把图像与文本映射到同一向量空间.
type Encoder interface {
	// EmbedImage 为一张图像（原始字节）生成向量.
	EmbedImage(ctx context.Context, image []byte) ([]float64, error)

	// EmbedTexts 为一批文本生成向量，返回顺序与输入一致.
	EmbedTexts(ctx context.Context, texts []string) ([][]float64, error)

	// Name 返回提供者名称.
	Name() string
}

// ErrZeroVector 零向量无法归一化
var ErrZeroVector = errors.New("embedding: zero-length vector")

// Normalize 返回单位长度的副本
func Normalize(v []float64) ([]float64, error) {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, ErrZeroVector
	}
	norm := math.Sqrt(sum)
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out, nil
}

// Dot 计算点积；对两个单位向量即为余弦相似度。长度不一致时按较短者计算。
func Dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}
