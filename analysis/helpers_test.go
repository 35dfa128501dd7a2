package analysis

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/BaSui01/promptfusion/llm"
	"github.com/stretchr/testify/require"
)

// fakeChat 返回固定补全的 llm.Provider
type fakeChat struct {
	mu    sync.Mutex
	reply string
	err   error
	calls int
	last  *llm.ChatRequest
}

func (f *fakeChat) Completion(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Model: req.Model, Choices: []llm.ChatChoice{{Message: llm.Message{Role: llm.RoleAssistant, Content: f.reply}}}}, nil
}

func (f *fakeChat) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *fakeChat) Name() string { return "fake-chat" }

func (f *fakeChat) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeEncoder 按文本查表返回向量，图像固定返回 imageVec
type fakeEncoder struct {
	imageVec []float64
	textVecs map[string][]float64
	fallback []float64
	err      error
}

func (f *fakeEncoder) EmbedImage(context.Context, []byte) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.imageVec, nil
}

func (f *fakeEncoder) EmbedTexts(_ context.Context, texts []string) ([][]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, ok := f.textVecs[t]
		if !ok {
			if f.fallback == nil {
				return nil, errors.New("no vector for " + t)
			}
			v = f.fallback
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEncoder) Name() string { return "fake-clip" }

// tinyPNG 生成一张 2x2 PNG
func tinyPNG(t testing.TB) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 10, G: 20, B: 200, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}
