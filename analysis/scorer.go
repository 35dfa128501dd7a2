package analysis

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/embedding"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// logitScale 余弦相似度放大倍数（CLIP logit scale）
	logitScale = 100.0

	// ScoreThreshold softmax 后保留的最低分（不含）
	ScoreThreshold = 0.2
)

// ScorerConfig 视觉打分参数
type ScorerConfig struct {
	// Concurrency 同时进行的类别嵌入请求数
	Concurrency int           `yaml:"concurrency" json:"concurrency"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// Scorer 以联合嵌入模型衡量图像与候选词的相似度
type Scorer struct {
	encoder embedding.Encoder
	cfg     ScorerConfig
	rec     llm.CallRecorder
	logger  *zap.Logger
}

// NewScorer 创建打分器；encoder 可为 nil（视觉打分整体降级为空）
func NewScorer(encoder embedding.Encoder, cfg ScorerConfig, rec llm.CallRecorder, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Scorer{
		encoder: encoder,
		cfg:     cfg,
		rec:     rec,
		logger:  logger.With(zap.String("component", "scorer")),
	}
}

// Available reports whether an encoder is wired.
func (s *Scorer) Available() bool { return s != nil && s.encoder != nil }

// Score 对候选特征打分。图像无法解码时返回 ImageDecodeError；
// 编码器缺失或调用失败时记录告警并返回空集。
func (s *Scorer) Score(ctx context.Context, payload string, candidates feature.FeatureSet) (feature.FeatureSet, error) {
	img, err := DecodeImage(payload)
	if err != nil {
		return nil, err
	}
	out, degraded := s.score(ctx, img.Bytes, candidates)
	if degraded != nil {
		s.logger.Warn("visual scoring degraded to empty", zap.Error(degraded))
	}
	return out, nil
}

// score 返回打分结果与降级原因（非 nil 时结果为空集）
func (s *Scorer) score(ctx context.Context, image []byte, candidates feature.FeatureSet) (feature.FeatureSet, error) {
	if !s.Available() {
		return feature.FeatureSet{}, fmt.Errorf("vision encoder not available")
	}
	if candidates.IsEmpty() {
		return feature.FeatureSet{}, nil
	}
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	imgVec, err := s.embedImage(ctx, image)
	if err != nil {
		return feature.FeatureSet{}, fmt.Errorf("embed image: %w", err)
	}

	var (
		mu  sync.Mutex
		out = feature.FeatureSet{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for _, category := range candidates.ActiveCategories() {
		terms := candidates.TermsOf(category)
		g.Go(func() error {
			scored, err := s.scoreCategory(gctx, imgVec, category, terms)
			if err != nil {
				return fmt.Errorf("category %s: %w", category, err)
			}
			if len(scored) == 0 {
				return nil
			}
			mu.Lock()
			out[category] = scored
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return feature.FeatureSet{}, err
	}
	return out, nil
}

func (s *Scorer) embedImage(ctx context.Context, image []byte) ([]float64, error) {
	start := time.Now()
	vec, err := s.encoder.EmbedImage(ctx, image)
	s.record(start, err)
	if err != nil {
		return nil, err
	}
	return embedding.Normalize(vec)
}

func (s *Scorer) scoreCategory(ctx context.Context, imgVec []float64, category string, terms []string) (map[string]float64, error) {
	texts := make([]string, len(terms))
	for i, t := range terms {
		texts[i] = fmt.Sprintf("This image shows %s %s", t, category)
	}

	start := time.Now()
	vecs, err := s.encoder.EmbedTexts(ctx, texts)
	s.record(start, err)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	logits := make([]float64, len(vecs))
	for i, v := range vecs {
		n, err := embedding.Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("text %q: %w", texts[i], err)
		}
		if len(n) != len(imgVec) {
			return nil, fmt.Errorf("text %q: dimension %d does not match image dimension %d", texts[i], len(n), len(imgVec))
		}
		logits[i] = logitScale * embedding.Dot(imgVec, n)
	}

	probs := softmax(logits)
	kept := make(map[string]float64)
	for i, p := range probs {
		if p > ScoreThreshold {
			kept[terms[i]] = p
		}
	}
	return kept, nil
}

func (s *Scorer) record(start time.Time, err error) {
	if s.rec == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.rec.RecordUpstreamCall("vision", s.encoder.Name(), status, time.Since(start))
}

// softmax 数值稳定的 softmax
func softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	peak := logits[0]
	for _, l := range logits[1:] {
		if l > peak {
			peak = l
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
