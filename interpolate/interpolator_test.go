package interpolate

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/pipeline"
	"github.com/BaSui01/promptfusion/synth"
	"github.com/BaSui01/promptfusion/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeComposer struct {
	mu         sync.Mutex
	clauses    []string
	base       string
	composeErr error
	calls      int
}

func (f *fakeComposer) Compose(_ context.Context, clauses []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.clauses = clauses
	if f.composeErr != nil {
		return "", f.composeErr
	}
	return "a blue and red scene", nil
}

func (f *fakeComposer) RefineComposed(_ context.Context, base string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.base = base
	return "a vivid " + base, nil
}

type fakeGenerator struct {
	prompt   string
	opts     synth.Options
	err      error
	checkErr error
	calls    int
}

func (f *fakeGenerator) CheckModel(string) error { return f.checkErr }

func (f *fakeGenerator) Generate(_ context.Context, prompt string, opts synth.Options) (*synth.Result, error) {
	f.calls++
	f.prompt = prompt
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &synth.Result{
		Success: true,
		URL:     "https://img.example/x.png",
		Prompt:  prompt,
		Metadata: synth.Metadata{
			Model: opts.Model, Size: opts.Size, Quality: opts.Quality, Timestamp: "2026-01-01T00:00:00Z",
		},
	}, nil
}

type fakeDescriber struct {
	fs  feature.FeatureSet
	err error
}

func (f *fakeDescriber) Describe(context.Context, string) (feature.FeatureSet, error) {
	return f.fs, f.err
}

type stageRecorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *stageRecorder) ObserveStage(p, stage, outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, p+"/"+stage+"/"+outcome)
}

func twoSources() Input {
	return Input{
		"b": {SourcePrompt: "red car", Weight: 0.4, Features: feature.FeatureSet{"color": {"red": 0.8}}},
		"a": {SourcePrompt: "blue sea", Weight: 0.6, Features: feature.FeatureSet{
			"color": {"deep blue": 0.9, "golden": 0.75},
			"mood":  {"stormy": 0.7},
		}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		code types.ErrorCode
	}{
		{"empty", Input{}, types.ErrInsufficientInput},
		{"one positive", Input{"a": {Weight: 1}, "b": {Weight: 0}}, types.ErrInsufficientInput},
		{"negative weight", Input{"a": {Weight: -0.1}, "b": {Weight: 1}}, types.ErrValidation},
		{"weight above one", Input{"a": {Weight: 1.5}, "b": {Weight: 1}}, types.ErrValidation},
		{"score above one", Input{
			"a": {Weight: 0.5, Features: feature.FeatureSet{"color": {"red": 7.5}}},
			"b": {Weight: 0.5, Features: feature.FeatureSet{"mood": {"calm": 0.4}}},
		}, types.ErrValidation},
		{"negative score", Input{
			"a": {Weight: 0.5, Features: feature.FeatureSet{"color": {"red": 0.7}}},
			"b": {Weight: 0.5, Features: feature.FeatureSet{"mood": {"calm": -3}}},
		}, types.ErrValidation},
		{"nan score", Input{
			"a": {Weight: 0.5, Features: feature.FeatureSet{"color": {"red": math.NaN()}}},
			"b": {Weight: 0.5},
		}, types.ErrValidation},
		{"ok", Input{"a": {Weight: 0.1}, "b": {Weight: 1, Features: feature.FeatureSet{"color": {"red": 1, "blue": 0}}}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, types.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestValidate_ScoreMessageNamesTerm(t *testing.T) {
	err := Input{
		"a": {Weight: 0.5, Features: feature.FeatureSet{"color": {"red": 7.5}}},
		"b": {Weight: 0.5},
	}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"a" color/red`)
}

func TestValidate_Property_FewerThanTwoPositive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "n")
		in := Input{}
		positive := 0
		for i := 0; i < n; i++ {
			w := rapid.Float64Range(0, 1).Draw(rt, "w")
			if rapid.Bool().Draw(rt, "zero") {
				w = 0
			}
			if w > 0 {
				positive++
			}
			in[string(rune('a'+i))] = Source{Weight: w}
		}
		err := in.Validate()
		if positive < 2 && !types.IsCode(err, types.ErrInsufficientInput) {
			rt.Fatalf("positive=%d, want INSUFFICIENT_INPUT, got %v", positive, err)
		}
		if positive >= 2 && err != nil {
			rt.Fatalf("positive=%d, unexpected error %v", positive, err)
		}
	})
}

func TestRenderClause(t *testing.T) {
	clause, summary, ok := RenderClause("a", twoSources()["a"])
	require.True(t, ok)
	assert.Equal(t, "Feature a: deep blue (90%), golden (75%), stormy (70%) with weight 60%", clause)
	assert.Equal(t, "deep blue (90%), golden (75%), stormy (70%) (weight: 60%)", summary)

	_, _, ok = RenderClause("x", Source{Weight: 1})
	assert.False(t, ok)
}

func TestSource_UnmarshalJSON(t *testing.T) {
	var in Input
	require.NoError(t, json.Unmarshal([]byte(`{
		"a": {"sourcePrompt": "blue sea", "weight": 0.3, "features": {"color": {"blue": 0.9}}},
		"b": {"source_prompt": "red car", "features": {}}
	}`), &in))
	assert.Equal(t, "blue sea", in["a"].SourcePrompt)
	assert.InDelta(t, 0.3, in["a"].Weight, 1e-9)
	assert.Equal(t, "red car", in["b"].SourcePrompt)
	assert.InDelta(t, DefaultWeight, in["b"].Weight, 1e-9)
}

func TestInterpolate_Success(t *testing.T) {
	comp := &fakeComposer{}
	gen := &fakeGenerator{}
	desc := &fakeDescriber{fs: feature.FeatureSet{"color": {"blue": 0.9}}}
	rec := &stageRecorder{}

	ip := New(comp, gen, desc, nil, WithObserver(rec))
	res, err := ip.Interpolate(context.Background(), twoSources(), synth.Options{Size: "512x512"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"Feature a: deep blue (90%), golden (75%), stormy (70%) with weight 60%",
		"Feature b: red (80%) with weight 40%",
	}, comp.clauses)
	assert.Equal(t, "a blue and red scene", comp.base)
	assert.Equal(t, "a vivid a blue and red scene", gen.prompt)
	assert.Equal(t, synth.Options{Model: synth.ModelDallE3, Size: "512x512", Quality: "standard"}, gen.opts)

	assert.True(t, res.Success)
	assert.Equal(t, "https://img.example/x.png", res.URL)
	assert.Equal(t, "a vivid a blue and red scene", res.Prompt)
	assert.Equal(t, desc.fs, res.Analysis)
	assert.Equal(t, map[string]float64{"a": 0.6, "b": 0.4}, res.Weights)
	assert.Equal(t, feature.FeatureSet{"color": {"red": 0.8}}, res.SourceAnalyses["b"])
	assert.Len(t, res.FeatureSummary, 2)
	assert.Equal(t, synth.ModelDallE3, res.Metadata.Model)

	assert.Equal(t, []string{
		"interpolate/render/ok",
		"interpolate/compose/ok",
		"interpolate/refine/ok",
		"interpolate/generate/ok",
		"interpolate/analyze/ok",
	}, rec.entries)
}

func TestInterpolate_InsufficientTouchesNothing(t *testing.T) {
	comp := &fakeComposer{}
	gen := &fakeGenerator{}
	ip := New(comp, gen, nil, nil)

	for _, in := range []Input{{}, {"a": {Weight: 1, Features: feature.FeatureSet{"color": {"red": 1}}}}} {
		_, err := ip.Interpolate(context.Background(), in, synth.Options{})
		assert.True(t, types.IsCode(err, types.ErrInsufficientInput))
	}
	assert.Zero(t, comp.calls)
	assert.Zero(t, gen.calls)
}

func TestInterpolate_SkipsZeroWeightSources(t *testing.T) {
	in := twoSources()
	in["c"] = Source{Weight: 0, Features: feature.FeatureSet{"style": {"noir": 0.9}}}
	comp := &fakeComposer{}
	ip := New(comp, &fakeGenerator{}, nil, nil)

	res, err := ip.Interpolate(context.Background(), in, synth.Options{})
	require.NoError(t, err)
	assert.Len(t, comp.clauses, 2)
	assert.NotContains(t, res.SourceAnalyses, "c")
	assert.Contains(t, res.Weights, "c")
}

func TestInterpolate_AnalysisDegradesToEmpty(t *testing.T) {
	rec := &stageRecorder{}
	ip := New(&fakeComposer{}, &fakeGenerator{},
		&fakeDescriber{err: types.Upstream("llm", errors.New("boom"))}, nil, WithObserver(rec))

	res, err := ip.Interpolate(context.Background(), twoSources(), synth.Options{})
	require.NoError(t, err)
	assert.Equal(t, feature.FeatureSet{}, res.Analysis)
	assert.Contains(t, rec.entries, "interpolate/analyze/soft")

	var soft []string
	for _, e := range res.Stages {
		if e.Outcome == pipeline.OutcomeSoft {
			soft = append(soft, e.Stage)
		}
	}
	assert.Equal(t, []string{"analyze"}, soft)
}

func TestInterpolate_HardErrorsShortCircuit(t *testing.T) {
	comp := &fakeComposer{composeErr: types.Upstream("llm", errors.New("rate limited upstream"))}
	gen := &fakeGenerator{}
	ip := New(comp, gen, nil, nil)

	_, err := ip.Interpolate(context.Background(), twoSources(), synth.Options{})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
	assert.Contains(t, err.Error(), "rate limited upstream")
	assert.Zero(t, gen.calls)

	comp = &fakeComposer{}
	gen = &fakeGenerator{checkErr: types.Unsupported("nope", []string{"dall-e-3"})}
	ip = New(comp, gen, nil, nil)
	_, err = ip.Interpolate(context.Background(), twoSources(), synth.Options{Model: "nope"})
	assert.True(t, types.IsCode(err, types.ErrUnsupportedBackend))
	assert.Zero(t, comp.calls, "no completion calls for unknown models")
	assert.Zero(t, gen.calls)
}

func TestInterpolate_EmptyFeaturesIsValidationError(t *testing.T) {
	in := Input{"a": {Weight: 0.5}, "b": {Weight: 0.5}}
	comp := &fakeComposer{}
	_, err := New(comp, &fakeGenerator{}, nil, nil).Interpolate(context.Background(), in, synth.Options{})
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Zero(t, comp.calls)
}
