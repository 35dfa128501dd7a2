package interpolate

import (
	"context"
	"errors"

	"github.com/BaSui01/promptfusion/feature"
	"github.com/BaSui01/promptfusion/pipeline"
	"github.com/BaSui01/promptfusion/synth"
	"github.com/BaSui01/promptfusion/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Composer 两次补全调用：合成与润色（*prompt.Service 满足该接口）
type Composer interface {
	Compose(ctx context.Context, clauses []string) (string, error)
	RefineComposed(ctx context.Context, base string) (string, error)
}

// Generator 图像生成（*synth.Synthesizer 满足该接口）
type Generator interface {
	CheckModel(model string) error
	Generate(ctx context.Context, prompt string, opts synth.Options) (*synth.Result, error)
}

// Describer 纯文本特征分析（*analysis.Analyzer 满足该接口）
type Describer interface {
	Describe(ctx context.Context, prompt string) (feature.FeatureSet, error)
}

// Result 插值结果
type Result struct {
	Success        bool                          `json:"success"`
	URL            string                        `json:"url"`
	Prompt         string                        `json:"prompt"`
	Analysis       feature.FeatureSet            `json:"analysis"`
	SourceAnalyses map[string]feature.FeatureSet `json:"source_analyses"`
	Weights        map[string]float64            `json:"weights"`
	FeatureSummary []string                      `json:"feature_summary"`
	Metadata       synth.Metadata                `json:"metadata"`
	Stages         []pipeline.Entry              `json:"-"`
}

// Option 配置 Interpolator
type Option func(*Interpolator)

// WithObserver 设置阶段观测者
func WithObserver(o pipeline.Observer) Option {
	return func(ip *Interpolator) { ip.observer = o }
}

// Interpolator 特征插值服务
type Interpolator struct {
	composer  Composer
	generator Generator
	describer Describer
	observer  pipeline.Observer
	pipe      *pipeline.Pipeline
	stages    pipeline.Stage[*state, *state]
	logger    *zap.Logger
}

// New 创建 Interpolator；describer 可为 nil（返回空分析）
func New(composer Composer, generator Generator, describer Describer, logger *zap.Logger, opts ...Option) *Interpolator {
	if logger == nil {
		logger = zap.NewNop()
	}
	ip := &Interpolator{
		composer:  composer,
		generator: generator,
		describer: describer,
		logger:    logger.With(zap.String("component", "interpolator")),
	}
	for _, opt := range opts {
		opt(ip)
	}
	ip.pipe = pipeline.NewPipeline("interpolate",
		pipeline.WithObserver(ip.observer),
		pipeline.WithLogger(ip.logger),
	)
	ip.stages = pipeline.Then(
		pipeline.Then(
			pipeline.Then(
				pipeline.New("render", renderStage),
				pipeline.New("compose", ip.composeStage),
			),
			pipeline.Then(
				pipeline.New("refine", ip.refineStage),
				pipeline.New("generate", ip.generateStage),
			),
		),
		pipeline.New("analyze", ip.analyzeStage),
	)
	return ip
}

type state struct {
	in       Input
	opts     synth.Options
	clauses  []string
	summary  []string
	sources  map[string]feature.FeatureSet
	base     string
	refined  string
	gen      *synth.Result
	analysis feature.FeatureSet
}

// Interpolate 校验输入并执行插值流水线；opts 中的空字段取 InterpolateDefaults
func (ip *Interpolator) Interpolate(ctx context.Context, in Input, opts synth.Options) (*Result, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if _, ok := types.TraceID(ctx); !ok {
		ctx = types.WithTraceID(ctx, uuid.NewString())
	}
	traceID, _ := types.TraceID(ctx)

	st := &state{in: in, opts: opts.WithDefaults(synth.InterpolateDefaults())}
	if err := ip.generator.CheckModel(st.opts.Model); err != nil {
		return nil, err
	}
	ip.logger.Info("interpolating features",
		zap.String("trace_id", traceID),
		zap.Int("sources", len(in)),
		zap.String("model", st.opts.Model),
		zap.String("size", st.opts.Size))

	out, tr, err := pipeline.Run(ctx, ip.pipe, ip.stages, st)
	if err != nil {
		ip.logger.Error("interpolation failed",
			zap.String("trace_id", traceID),
			zap.String("stage", pipeline.FailedStage(err)),
			zap.Error(err))
		return nil, unwrapStage(err)
	}

	return &Result{
		Success:        true,
		URL:            out.gen.URL,
		Prompt:         out.refined,
		Analysis:       out.analysis,
		SourceAnalyses: out.sources,
		Weights:        in.Weights(),
		FeatureSummary: out.summary,
		Metadata:       out.gen.Metadata,
		Stages:         tr.Entries(),
	}, nil
}

func renderStage(_ context.Context, st *state) (*state, error) {
	st.sources = make(map[string]feature.FeatureSet)
	for _, id := range st.in.IDs() {
		src := st.in[id]
		if src.Weight <= 0 {
			continue
		}
		st.sources[id] = src.Features.Clone()
		clause, summary, ok := RenderClause(id, src)
		if !ok {
			continue
		}
		st.clauses = append(st.clauses, clause)
		st.summary = append(st.summary, summary)
	}
	if len(st.clauses) == 0 {
		return st, types.Validation("weighted features carry no terms to interpolate")
	}
	return st, nil
}

func (ip *Interpolator) composeStage(ctx context.Context, st *state) (*state, error) {
	base, err := ip.composer.Compose(ctx, st.clauses)
	if err != nil {
		return st, err
	}
	st.base = base
	return st, nil
}

func (ip *Interpolator) refineStage(ctx context.Context, st *state) (*state, error) {
	refined, err := ip.composer.RefineComposed(ctx, st.base)
	if err != nil {
		return st, err
	}
	st.refined = refined
	return st, nil
}

func (ip *Interpolator) generateStage(ctx context.Context, st *state) (*state, error) {
	gen, err := ip.generator.Generate(ctx, st.refined, st.opts)
	if err != nil {
		return st, err
	}
	st.gen = gen
	return st, nil
}

// analyzeStage 分析仅供回显，任何失败都降级为空集
func (ip *Interpolator) analyzeStage(ctx context.Context, st *state) (*state, error) {
	st.analysis = feature.FeatureSet{}
	if ip.describer == nil {
		return st, pipeline.Soft(errors.New("analyzer not configured"))
	}
	fs, err := ip.describer.Describe(ctx, st.refined)
	if err != nil {
		return st, pipeline.Soft(err)
	}
	if fs.IsEmpty() {
		return st, pipeline.Soft(errors.New("no features extracted from interpolated prompt"))
	}
	st.analysis = fs
	return st, nil
}

func unwrapStage(err error) error {
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return se.Err
	}
	return err
}
