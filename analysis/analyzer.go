package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/internal/cache"
	"github.com/BaSui01/promptfusion/pipeline"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// DefaultCacheTTL 纯文本分析结果的缓存时长
const DefaultCacheTTL = 300 * time.Second

const cacheType = "analysis"

// Result 一次分析的结果
type Result struct {
	Success          bool               `json:"success"`
	Analysis         feature.FeatureSet `json:"analysis"`
	ActiveCategories []string           `json:"active_categories"`
}

func newResult(fs feature.FeatureSet) *Result {
	return &Result{Success: true, Analysis: fs, ActiveCategories: fs.ActiveCategories()}
}

// CacheRecorder 接收缓存命中统计（*metrics.Collector 满足该接口）
type CacheRecorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// AnalyzerOption 配置 Analyzer
type AnalyzerOption func(*Analyzer)

// WithCache 设置结果缓存；ttl 为 0 时使用 DefaultCacheTTL
func WithCache(store cache.Store, ttl time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		a.cache = store
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithCacheRecorder 设置缓存指标
func WithCacheRecorder(rec CacheRecorder) AnalyzerOption {
	return func(a *Analyzer) { a.cacheRec = rec }
}

// WithPipelineObserver 设置阶段观测者
func WithPipelineObserver(o pipeline.Observer) AnalyzerOption {
	return func(a *Analyzer) { a.observer = o }
}

// Analyzer 组合抽取、打分与合并
type Analyzer struct {
	extractor *Extractor
	scorer    *Scorer
	cache     cache.Store
	ttl       time.Duration
	cacheRec  CacheRecorder
	observer  pipeline.Observer
	pipe      *pipeline.Pipeline
	stages    pipeline.Stage[*analysisState, *analysisState]
	logger    *zap.Logger
}

// NewAnalyzer 创建分析服务；scorer 可为 nil
func NewAnalyzer(extractor *Extractor, scorer *Scorer, logger *zap.Logger, opts ...AnalyzerOption) *Analyzer {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Analyzer{
		extractor: extractor,
		scorer:    scorer,
		ttl:       DefaultCacheTTL,
		logger:    logger.With(zap.String("component", "analyzer")),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.pipe = pipeline.NewPipeline("analyze",
		pipeline.WithObserver(a.observer),
		pipeline.WithLogger(a.logger),
	)
	a.stages = pipeline.Then(
		pipeline.Then(
			pipeline.New("extract", a.extractStage),
			pipeline.New("score", a.scoreStage),
		),
		pipeline.New("merge", mergeStage),
	)
	return a
}

type analysisState struct {
	prompt string
	image  *DecodedImage
	text   feature.FeatureSet
	visual feature.FeatureSet
	merged feature.FeatureSet
}

// Analyze 分析提示词与可选图像。合并结果为空时返回 NO_FEATURES 错误。
func (a *Analyzer) Analyze(ctx context.Context, prompt, imagePayload string) (*Result, error) {
	fs, err := a.run(ctx, prompt, imagePayload)
	if err != nil {
		return nil, err
	}
	if fs.IsEmpty() {
		return nil, types.NewError(types.ErrNoFeatures, "No features found").
			WithHTTPStatus(http.StatusUnprocessableEntity)
	}
	return newResult(fs), nil
}

// Describe 仅分析文本，空结果不视为错误。供生成与插值回显分析使用。
func (a *Analyzer) Describe(ctx context.Context, prompt string) (feature.FeatureSet, error) {
	return a.run(ctx, prompt, "")
}

func (a *Analyzer) run(ctx context.Context, prompt, imagePayload string) (feature.FeatureSet, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, types.Validation("prompt must be a non-empty string")
	}

	st := &analysisState{prompt: prompt}
	if imagePayload != "" {
		img, err := DecodeImage(imagePayload)
		if err != nil {
			return nil, err
		}
		st.image = img
	}

	textOnly := st.image == nil
	key := CacheKey(prompt)
	if textOnly {
		if fs, ok := a.lookup(ctx, key); ok {
			return fs, nil
		}
	}

	out, tr, err := pipeline.Run(ctx, a.pipe, a.stages, st)
	if err != nil {
		a.logger.Error("analysis failed",
			zap.String("stage", pipeline.FailedStage(err)),
			zap.Error(err))
		return nil, unwrapStage(err)
	}
	for _, soft := range tr.SoftFailures() {
		a.logger.Info("analysis stage degraded", zap.String("stage", soft.Stage), zap.String("reason", soft.Error))
	}

	if textOnly && !out.merged.IsEmpty() {
		a.store(ctx, key, out.merged)
	}
	return out.merged, nil
}

func (a *Analyzer) extractStage(ctx context.Context, st *analysisState) (*analysisState, error) {
	fs, err := a.extractor.Extract(ctx, st.prompt)
	if err != nil {
		return st, err
	}
	st.text = fs
	if fs.IsEmpty() {
		return st, pipeline.Soft(errors.New("no features extracted from prompt"))
	}
	return st, nil
}

func (a *Analyzer) scoreStage(ctx context.Context, st *analysisState) (*analysisState, error) {
	st.visual = feature.FeatureSet{}
	if st.image == nil {
		return st, nil
	}
	if a.scorer == nil {
		a.logger.Warn("vision encoder not configured, skipping image scoring")
		return st, pipeline.Soft(errors.New("vision encoder not configured"))
	}
	fs, degraded := a.scorer.score(ctx, st.image.Bytes, st.text)
	st.visual = fs
	if degraded != nil {
		a.logger.Warn("visual scoring degraded to empty", zap.Error(degraded))
		return st, pipeline.Soft(degraded)
	}
	return st, nil
}

func mergeStage(_ context.Context, st *analysisState) (*analysisState, error) {
	st.merged = feature.Merge(st.text, st.visual)
	return st, nil
}

// =============================================================================
// 💾 缓存
// =============================================================================

// CacheKey 返回提示词对应的缓存键
func CacheKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "analysis:" + hex.EncodeToString(sum[:])
}

func (a *Analyzer) lookup(ctx context.Context, key string) (feature.FeatureSet, bool) {
	if a.cache == nil {
		return nil, false
	}
	var fs feature.FeatureSet
	err := cache.GetJSON(ctx, a.cache, key, &fs)
	switch {
	case err == nil:
		a.recordCache(true)
		return fs, true
	case cache.IsCacheMiss(err):
		a.recordCache(false)
	default:
		a.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	return nil, false
}

func (a *Analyzer) store(ctx context.Context, key string, fs feature.FeatureSet) {
	if a.cache == nil {
		return
	}
	if err := cache.SetJSON(ctx, a.cache, key, fs, a.ttl); err != nil {
		a.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (a *Analyzer) recordCache(hit bool) {
	if a.cacheRec == nil {
		return
	}
	if hit {
		a.cacheRec.RecordCacheHit(cacheType)
	} else {
		a.cacheRec.RecordCacheMiss(cacheType)
	}
}

// unwrapStage 取出阶段内的业务错误，使 HTTP 层看到原始 *types.Error
func unwrapStage(err error) error {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
