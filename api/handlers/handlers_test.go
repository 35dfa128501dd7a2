package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/promptfusion/analysis"
	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/interpolate"
	"github.com/BaSui01/promptfusion/synth"
	"github.com/BaSui01/promptfusion/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 测试辅助类型
// =============================================================================

type fakeAnalyzer struct {
	res    *analysis.Result
	err    error
	prompt string
	image  string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, prompt, image string) (*analysis.Result, error) {
	f.prompt, f.image = prompt, image
	return f.res, f.err
}

type fakeRefiner struct {
	err   error
	calls int
}

func (f *fakeRefiner) Refine(_ context.Context, p string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "refined " + p, nil
}

func (f *fakeRefiner) Enhance(_ context.Context, p string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "enhanced " + p, nil
}

type fakeGenerator struct {
	err      error
	checkErr error
	prompt   string
	opts     synth.Options
}

func (f *fakeGenerator) CheckModel(string) error { return f.checkErr }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts synth.Options) (*synth.Result, error) {
	f.prompt, f.opts = prompt, opts
	if f.err != nil {
		return nil, f.err
	}
	return &synth.Result{
		Success:  true,
		URL:      "https://img.example/a.png",
		Prompt:   prompt,
		Metadata: synth.Metadata{Model: opts.Model, Size: opts.Size, Quality: opts.Quality, Timestamp: "2026-01-01T00:00:00Z"},
	}, nil
}

func (f *fakeGenerator) AvailableModels(context.Context) []string {
	return []string{synth.ModelDallE2, synth.ModelDallE3}
}

type fakeDescriber struct {
	fs  feature.FeatureSet
	err error
}

func (f *fakeDescriber) Describe(context.Context, string) (feature.FeatureSet, error) {
	return f.fs, f.err
}

type fakeInterpolator struct {
	in   interpolate.Input
	opts synth.Options
	err  error
}

func (f *fakeInterpolator) Interpolate(_ context.Context, in interpolate.Input, opts synth.Options) (*interpolate.Result, error) {
	f.in, f.opts = in, opts
	if f.err != nil {
		return nil, f.err
	}
	return &interpolate.Result{
		Success:        true,
		URL:            "https://img.example/mix.png",
		Prompt:         "a blend",
		Analysis:       feature.FeatureSet{},
		Weights:        in.Weights(),
		FeatureSummary: []string{"red (80%) (weight: 50%)"},
	}, nil
}

func post(t *testing.T, h http.HandlerFunc, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	h(w, r)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

// =============================================================================
// 🔍 /api/analyze
// =============================================================================

func TestAnalyzeHandler(t *testing.T) {
	fs := feature.FeatureSet{"color": {"deep blue": 0.9}, "mood": {"stormy": 0.8}}
	an := &fakeAnalyzer{res: &analysis.Result{Success: true, Analysis: fs, ActiveCategories: fs.ActiveCategories()}}
	h := NewAnalyzeHandler(an, zap.NewNop())

	w, body := post(t, h.HandleAnalyze, "/api/analyze", `{"prompt":"a stormy ocean","image_data":"data:image/png;base64,AAAA"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Analysis completed successfully", body["message"])
	assert.Equal(t, []any{"color", "mood"}, body["active_categories"])
	assert.Contains(t, body["analysis"], "color")
	assert.Equal(t, "a stormy ocean", an.prompt)
	assert.Equal(t, "data:image/png;base64,AAAA", an.image)
}

func TestAnalyzeHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"missing prompt", `{}`, nil, http.StatusBadRequest, types.ErrValidation},
		{"malformed json", `{"prompt":`, nil, http.StatusBadRequest, types.ErrInvalidRequest},
		{"bad image", `{"prompt":"x","image_data":"???"}`, types.ImageDecode(errors.New("unknown format")), http.StatusBadRequest, types.ErrImageDecode},
		{"no features", `{"prompt":"x"}`, types.NewError(types.ErrNoFeatures, "No features found"), http.StatusUnprocessableEntity, types.ErrNoFeatures},
		{"upstream", `{"prompt":"x"}`, types.Upstream("openai", errors.New("quota exceeded")), http.StatusBadGateway, types.ErrUpstreamError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewAnalyzeHandler(&fakeAnalyzer{err: tt.err}, nil)
			w, body := post(t, h.HandleAnalyze, "/api/analyze", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, string(tt.wantCode), errorCode(body))
		})
	}
}

// =============================================================================
// 🎨 /api/generate
// =============================================================================

func TestGenerateHandler(t *testing.T) {
	ref := &fakeRefiner{}
	gen := &fakeGenerator{}
	desc := &fakeDescriber{fs: feature.FeatureSet{"object": {"cat": 0.9}}}
	h := NewGenerateHandler(ref, gen, desc, nil)

	w, body := post(t, h.HandleGenerate, "/api/generate", `{"prompt":"a cat"}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refined a cat", gen.prompt)
	assert.Equal(t, synth.GenerateDefaults(), gen.opts)
	assert.Equal(t, "https://img.example/a.png", body["url"])
	assert.Equal(t, "refined a cat", body["prompt"])
	assert.Equal(t, "a cat", body["original_prompt"])
	assert.Contains(t, body["analysis"], "object")

	meta, ok := body["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "dall-e-2", meta["model"])
	assert.Equal(t, "512x512", meta["size"])
}

func TestGenerateHandler_AnalysisFailureIsEmpty(t *testing.T) {
	h := NewGenerateHandler(&fakeRefiner{}, &fakeGenerator{},
		&fakeDescriber{err: types.Upstream("openai", errors.New("boom"))}, nil)

	w, body := post(t, h.HandleGenerate, "/api/generate", `{"prompt":"a cat","model":"dall-e-3","seed":7}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]any{}, body["analysis"])
}

func TestGenerateHandler_Errors(t *testing.T) {
	t.Run("unsupported model", func(t *testing.T) {
		ref := &fakeRefiner{}
		gen := &fakeGenerator{checkErr: types.Unsupported("unknown-model", []string{"dall-e-3"})}
		w, body := post(t, NewGenerateHandler(ref, gen, nil, nil).HandleGenerate,
			"/api/generate", `{"prompt":"a cat","model":"unknown-model"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, string(types.ErrUnsupportedBackend), errorCode(body))
		assert.Zero(t, ref.calls, "refine is skipped for unknown models")
		assert.Empty(t, gen.prompt)
	})

	t.Run("refine failure stops generation", func(t *testing.T) {
		ref := &fakeRefiner{err: types.Upstream("openai", errors.New("down"))}
		gen := &fakeGenerator{}
		w, _ := post(t, NewGenerateHandler(ref, gen, nil, nil).HandleGenerate, "/api/generate", `{"prompt":"a cat"}`)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Empty(t, gen.prompt)
	})

	t.Run("missing prompt", func(t *testing.T) {
		ref := &fakeRefiner{}
		w, _ := post(t, NewGenerateHandler(ref, &fakeGenerator{}, nil, nil).HandleGenerate, "/api/generate", `{"prompt":"  "}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Zero(t, ref.calls)
	})
}

// =============================================================================
// 🔀 /api/interpolate
// =============================================================================

func TestInterpolateHandler(t *testing.T) {
	ip := &fakeInterpolator{}
	h := NewInterpolateHandler(ip, nil)

	w, body := post(t, h.HandleInterpolate, "/api/interpolate", `{
		"features": {
			"a": {"sourcePrompt": "red car", "weight": 0.5, "features": {"color": {"red": 0.8}}},
			"b": {"sourcePrompt": "blue sea", "weight": 0.5, "features": {"color": {"blue": 0.9}}}
		},
		"model": "stable-diffusion",
		"size": "768x768"
	}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://img.example/mix.png", body["url"])
	assert.Equal(t, []any{"red (80%) (weight: 50%)"}, body["feature_summary"])
	assert.Equal(t, "red car", ip.in["a"].SourcePrompt)
	assert.Equal(t, synth.Options{Model: "stable-diffusion", Size: "768x768"}, ip.opts)
}

func TestInterpolateHandler_Insufficient(t *testing.T) {
	h := NewInterpolateHandler(&fakeInterpolator{err: types.Insufficient(1)}, nil)
	w, body := post(t, h.HandleInterpolate, "/api/interpolate", `{"features":{"a":{"weight":1,"features":{}}}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInsufficientInput), errorCode(body))
}

// =============================================================================
// 📚 /api/features/available, /api/models, /api/enhance
// =============================================================================

func TestCatalogHandler_Features(t *testing.T) {
	h := NewCatalogHandler(&fakeGenerator{}, &fakeRefiner{}, nil)
	w := httptest.NewRecorder()
	h.HandleFeatures(w, httptest.NewRequest(http.MethodGet, "/api/features/available", nil))

	var body struct {
		Success  bool `json:"success"`
		Features map[string]struct {
			Label       string   `json:"label"`
			Descriptors []string `json:"descriptors"`
		} `json:"features"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Len(t, body.Features, len(feature.Categories))
	assert.Equal(t, "Color", body.Features["color"].Label)
	assert.NotNil(t, body.Features["medium"].Descriptors)
}

func TestCatalogHandler_Models(t *testing.T) {
	h := NewCatalogHandler(&fakeGenerator{}, &fakeRefiner{}, nil)
	w := httptest.NewRecorder()
	h.HandleModels(w, httptest.NewRequest(http.MethodGet, "/api/models", nil))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, []any{"dall-e-2", "dall-e-3"}, body["models"])
}

func TestCatalogHandler_Enhance(t *testing.T) {
	h := NewCatalogHandler(&fakeGenerator{}, &fakeRefiner{}, nil)
	w, body := post(t, h.HandleEnhance, "/api/enhance", `{"prompt":"a dog"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "enhanced a dog", body["prompt"])
	assert.Equal(t, "a dog", body["original_prompt"])

	w, body = post(t, h.HandleEnhance, "/api/enhance", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrValidation), errorCode(body))
}
