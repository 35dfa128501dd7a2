package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/BaSui01/promptfusion/pipeline"

// 阶段结果
const (
	OutcomeOK    = "ok"
	OutcomeSoft  = "soft"
	OutcomeError = "error"
)

// Observer 接收每个阶段的耗时与结果（*metrics.Collector 满足该接口）
type Observer interface {
	ObserveStage(pipeline, stage, outcome string, duration time.Duration)
}

type multiObserver []Observer

func (m multiObserver) ObserveStage(pipeline, stage, outcome string, d time.Duration) {
	for _, o := range m {
		o.ObserveStage(pipeline, stage, outcome, d)
	}
}

// Observers 合并多个观测者；nil 项被忽略，全部为 nil 时返回 nil
func Observers(obs ...Observer) Observer {
	var out multiObserver
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}

// Pipeline 一条具名流水线的执行环境
type Pipeline struct {
	name     string
	observer Observer
	logger   *zap.Logger
	tracer   oteltrace.Tracer
}

// Option 配置 Pipeline
type Option func(*Pipeline)

// WithObserver 设置阶段观测者
func WithObserver(o Observer) Option {
	return func(p *Pipeline) { p.observer = o }
}

// WithLogger 设置日志
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider
func WithTracer(t oteltrace.Tracer) Option {
	return func(p *Pipeline) { p.tracer = t }
}

// NewPipeline 创建流水线执行环境
func NewPipeline(name string, opts ...Option) *Pipeline {
	p := &Pipeline{name: name, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	p.logger = p.logger.With(zap.String("pipeline", name))
	return p
}

// Name 返回流水线名
func (p *Pipeline) Name() string { return p.name }

// =============================================================================
// 🧾 执行记录
// =============================================================================

// Entry 单个阶段的执行记录
type Entry struct {
	Stage    string        `json:"stage"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Trace 一次执行中各阶段的记录，按执行顺序排列
type Trace struct {
	mu      sync.Mutex
	entries []Entry
}

func (t *Trace) add(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Entries 返回记录副本
func (t *Trace) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// SoftFailures 返回所有软失败记录
func (t *Trace) SoftFailures() []Entry {
	var out []Entry
	for _, e := range t.Entries() {
		if e.Outcome == OutcomeSoft {
			out = append(out, e)
		}
	}
	return out
}

// Outcome 返回指定阶段的结果；未执行时返回空字符串
func (t *Trace) Outcome(stage string) string {
	for _, e := range t.Entries() {
		if e.Stage == stage {
			return e.Outcome
		}
	}
	return ""
}

// =============================================================================
// ▶️ 执行
// =============================================================================

type execKey struct{}

type execution struct {
	p     *Pipeline
	trace *Trace
}

// Run 在 p 的环境中执行 stage。返回的 Trace 在出错时也非 nil。
func Run[I, O any](ctx context.Context, p *Pipeline, stage Stage[I, O], in I) (O, *Trace, error) {
	if p == nil {
		p = NewPipeline("default")
	}
	tr := &Trace{}
	ctx = context.WithValue(ctx, execKey{}, &execution{p: p, trace: tr})

	ctx, span := p.tracer.Start(ctx, p.name)
	defer span.End()

	out, err := runStage(ctx, stage, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
	return out, tr, err
}

func runStage[I, O any](ctx context.Context, stage Stage[I, O], in I) (O, error) {
	if _, ok := stage.(composite); ok {
		return stage.Run(ctx, in)
	}

	ex, _ := ctx.Value(execKey{}).(*execution)
	if ex == nil {
		// 脱离 Run 直接调用时不做观测，软失败同样不中断
		out, err := stage.Run(ctx, in)
		if IsSoft(err) {
			err = nil
		}
		return out, err
	}

	name := stage.Name()
	ctx, span := ex.p.tracer.Start(ctx, ex.p.name+"."+name,
		oteltrace.WithAttributes(attribute.String("pipeline.stage", name)))
	defer span.End()

	start := time.Now()
	out, err := stage.Run(ctx, in)
	elapsed := time.Since(start)

	entry := Entry{Stage: name, Outcome: OutcomeOK, Duration: elapsed}
	switch {
	case err == nil:
	case IsSoft(err):
		entry.Outcome = OutcomeSoft
		entry.Error = err.Error()
		err = nil
		span.SetAttributes(attribute.Bool("pipeline.soft_failure", true))
		ex.p.logger.Warn("stage soft failure, continuing",
			zap.String("stage", name), zap.String("error", entry.Error))
	default:
		entry.Outcome = OutcomeError
		entry.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, entry.Error)
		var se *StageError
		if !errors.As(err, &se) {
			err = &StageError{Stage: name, Err: err}
		}
	}

	ex.trace.add(entry)
	if ex.p.observer != nil {
		ex.p.observer.ObserveStage(ex.p.name, name, entry.Outcome, elapsed)
	}
	return out, err
}
