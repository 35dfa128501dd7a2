package llm

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Handler 是一次补全调用
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware 包装 Handler
type Middleware func(next Handler) Handler

// Compose 按声明顺序包装 h：第一个中间件在最外层
func Compose(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// servedModel 优先取上游实际返回的 model
func servedModel(req *ChatRequest, resp *ChatResponse) string {
	if resp != nil && resp.Model != "" {
		return resp.Model
	}
	if req.Model != "" {
		return req.Model
	}
	return "default"
}

// =============================================================================
// 🧩 内置中间件
// =============================================================================

// LoggingMiddleware 失败记 Warn，成功记 Debug
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			fields := make([]zap.Field, 0, 5)
			fields = append(fields,
				zap.String("model", servedModel(req, resp)),
				zap.Int("messages", len(req.Messages)),
				zap.Duration("latency", time.Since(start)),
			)
			if req.TraceID != "" {
				fields = append(fields, zap.String("trace_id", req.TraceID))
			}
			if err != nil {
				logger.Warn("completion failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			if resp != nil {
				fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
			}
			logger.Debug("completion ok", fields...)
			return resp, nil
		}
	}
}

// TimeoutMiddleware 请求自身未带 Timeout 时施加默认超时
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if req.Timeout > 0 {
				return next(ctx, req)
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// PanicError 由 RecoveryMiddleware 返回
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("completion panicked: %v", e.Value) }

// RecoveryMiddleware 把 panic 转为 *PanicError
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if onPanic != nil {
					onPanic(r)
				}
				resp, err = nil, &PanicError{Value: r}
			}()
			return next(ctx, req)
		}
	}
}

// CallRecorder 接收上游调用指标，*metrics.Collector 满足该接口
type CallRecorder interface {
	RecordUpstreamCall(service, model, status string, duration time.Duration)
	RecordLLMTokens(model string, promptTokens, completionTokens int)
}

// MetricsMiddleware 以 service="llm" 记录调用与 Token
func MetricsMiddleware(rec CallRecorder) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			model := servedModel(req, resp)
			if err != nil {
				rec.RecordUpstreamCall("llm", model, "error", time.Since(start))
				return resp, err
			}
			rec.RecordUpstreamCall("llm", model, "success", time.Since(start))
			if resp != nil {
				rec.RecordLLMTokens(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			return resp, nil
		}
	}
}

// =============================================================================
// 📦 包装后的 Provider
// =============================================================================

type wrappedProvider struct {
	Provider
	completion Handler
}

func (w *wrappedProvider) Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	return w.completion(ctx, req)
}

// Wrap 仅对 Completion 施加中间件；HealthCheck 与 Name 透传
func Wrap(p Provider, middlewares ...Middleware) Provider {
	if len(middlewares) == 0 {
		return p
	}
	return &wrappedProvider{Provider: p, completion: Compose(p.Completion, middlewares...)}
}
