package analysis

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/internal/cache"
	"github.com/BaSui01/promptfusion/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const stormyReply = `{"color":{"dark grey":0.9,"deep blue":0.8},"mood":{"turbulent":0.95,"ominous":0.7}}`

type cacheCounter struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *cacheCounter) RecordCacheHit(string) {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *cacheCounter) RecordCacheMiss(string) {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

func TestAnalyzer_StormyOcean(t *testing.T) {
	chat := &fakeChat{reply: stormyReply}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, zap.NewNop())

	res, err := a.Analyze(context.Background(), "A stormy ocean at dusk", "")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{"color", "mood"}, res.ActiveCategories)
	assert.Equal(t, 0.95, res.Analysis["mood"]["turbulent"])

	assert.Equal(t, res.Analysis, feature.Merge(res.Analysis, feature.FeatureSet{}))
}

func TestAnalyzer_NoFeatures(t *testing.T) {
	a := NewAnalyzer(NewExtractor(&fakeChat{reply: "I cannot help with that."}, ExtractorConfig{}, nil), nil, nil)

	_, err := a.Analyze(context.Background(), "something", "")
	te, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrNoFeatures, te.Code)
	assert.Equal(t, 422, te.HTTPStatus)

	fs, err := a.Describe(context.Background(), "something")
	require.NoError(t, err)
	assert.True(t, fs.IsEmpty())
}

func TestAnalyzer_WithImage(t *testing.T) {
	chat := &fakeChat{reply: `{"color":{"blue":0.3,"red":0.6}}`}
	enc := &fakeEncoder{
		imageVec: []float64{1, 0},
		textVecs: map[string][]float64{
			"This image shows blue color": {1, 0},
			"This image shows red color":  {0, 1},
		},
	}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), NewScorer(enc, ScorerConfig{}, nil, nil), nil)

	res, err := a.Analyze(context.Background(), "a blue thing", "data:image/png;base64,"+base64.StdEncoding.EncodeToString(tinyPNG(t)))
	require.NoError(t, err)
	// 视觉分数更高时取最大值
	assert.Greater(t, res.Analysis["color"]["blue"], 0.99)
	assert.Equal(t, 0.6, res.Analysis["color"]["red"])
}

func TestAnalyzer_ImageWithoutEncoder(t *testing.T) {
	chat := &fakeChat{reply: stormyReply}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, nil)

	res, err := a.Analyze(context.Background(), "storm", base64.StdEncoding.EncodeToString(tinyPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, []string{"color", "mood"}, res.ActiveCategories)
}

func TestAnalyzer_BadImageFailsBeforeCompletion(t *testing.T) {
	chat := &fakeChat{reply: stormyReply}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, nil)

	_, err := a.Analyze(context.Background(), "storm", "data:image/png;base64,AAAA")
	assert.True(t, types.IsCode(err, types.ErrImageDecode))
	assert.Zero(t, chat.Calls())
}

func TestAnalyzer_ValidationAndUpstream(t *testing.T) {
	a := NewAnalyzer(NewExtractor(&fakeChat{reply: stormyReply}, ExtractorConfig{}, nil), nil, nil)
	_, err := a.Analyze(context.Background(), " ", "")
	assert.True(t, types.IsCode(err, types.ErrValidation))

	failing := NewAnalyzer(NewExtractor(&fakeChat{err: assert.AnError}, ExtractorConfig{}, nil), nil, nil)
	_, err = failing.Analyze(context.Background(), "x", "")
	assert.True(t, types.IsCode(err, types.ErrUpstreamError))
}

func TestAnalyzer_Cache(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := cache.NewMemoryStore(0, clock)
	counter := &cacheCounter{}
	chat := &fakeChat{reply: stormyReply}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, nil,
		WithCache(store, 0), WithCacheRecorder(counter))

	ctx := context.Background()
	first, err := a.Analyze(ctx, "stormy ocean", "")
	require.NoError(t, err)
	second, err := a.Analyze(ctx, "stormy ocean", "")
	require.NoError(t, err)

	assert.Equal(t, first.Analysis, second.Analysis)
	assert.Equal(t, 1, chat.Calls())
	assert.Equal(t, 1, counter.hits)
	assert.Equal(t, 1, counter.misses)

	_, err = store.Get(ctx, CacheKey("stormy ocean"))
	require.NoError(t, err)

	mu.Lock()
	now = now.Add(DefaultCacheTTL)
	mu.Unlock()

	_, err = a.Analyze(ctx, "stormy ocean", "")
	require.NoError(t, err)
	assert.Equal(t, 2, chat.Calls())
}

func TestAnalyzer_CacheSkipsEmptyAndImage(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute, nil)
	chat := &fakeChat{reply: "not json"}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, nil, WithCache(store, 0))

	_, _ = a.Analyze(context.Background(), "p", "")
	assert.Zero(t, store.Len())

	chat.reply = stormyReply
	_, err := a.Analyze(context.Background(), "p", base64.StdEncoding.EncodeToString(tinyPNG(t)))
	require.NoError(t, err)
	assert.Zero(t, store.Len())
}

func TestAnalyzer_CacheFailureIgnored(t *testing.T) {
	store := cache.NewMemoryStore(time.Minute, nil)
	require.NoError(t, store.Close())

	chat := &fakeChat{reply: stormyReply}
	a := NewAnalyzer(NewExtractor(chat, ExtractorConfig{}, nil), nil, nil, WithCache(store, 0))

	res, err := a.Analyze(context.Background(), "storm", "")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Analysis)
}

func TestCacheKey(t *testing.T) {
	k := CacheKey("abc")
	assert.Equal(t, "analysis:ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", k)
}
