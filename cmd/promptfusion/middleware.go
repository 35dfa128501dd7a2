package main

import (
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/api/handlers"
	"github.com/BaSui01/promptfusion/internal/metrics"
	"github.com/BaSui01/promptfusion/internal/telemetry"
	"github.com/BaSui01/promptfusion/types"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Middleware 包装 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 第一个中间件在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

func passThrough(next http.Handler) http.Handler { return next }

// probePaths 探活端点：免认证、免限流、日志降为 debug
var probePaths = []string{"/healthz", "/ready", "/version", "/api/health"}

func isProbePath(path string) bool { return slices.Contains(probePaths, path) }

// routeLabels 指标与 span 名使用的 path 白名单
var routeLabels = []string{
	"/api/analyze", "/api/generate", "/api/interpolate",
	"/api/features/available", "/api/models", "/api/enhance", "/api/proxy-image",
	"/api/health", "/healthz", "/ready", "/version",
}

// normalizePath 未登记路径归为 "other"，限制 label 基数
func normalizePath(path string) string {
	if slices.Contains(routeLabels, path) {
		return path
	}
	return "other"
}

// =============================================================================
// 🧱 基础
// =============================================================================

// Recovery 捕获 handler panic，返回 500 信封
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				logger.Error("panic recovered",
					zap.Any("panic", v),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Stack("stack"))
				handlers.WriteErrorMessage(w, r, http.StatusInternalServerError,
					types.ErrInternalError, "internal server error", nil)
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const maxRequestIDLen = 128

// RequestID 沿用客户端的 X-Request-ID，缺失或过长时生成 UUID
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get("X-Request-ID"))
			if id == "" || len(id) > maxRequestIDLen {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), id)))
		})
	}
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'"},
}

func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📝 日志 / 📊 指标 / 🔭 追踪
// =============================================================================

// RequestLogger 每个请求一条访问日志；探活请求记为 Debug
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			fields := make([]zap.Field, 0, 10)
			fields = append(fields,
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.StatusCode),
				zap.Int64("bytes", rw.Bytes),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			)
			if id := rw.Header().Get("X-Request-ID"); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}
			fields = append(fields, telemetry.LogFields(r.Context())...)

			log := logger.Info
			if isProbePath(r.URL.Path) {
				log = logger.Debug
			}
			log("request", fields...)
		})
	}
}

// MetricsMiddleware 记录请求数、耗时、收发字节与在途请求
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := collector.TrackInFlight()
			defer done()

			start := time.Now()
			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r)

			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rw.StatusCode,
				time.Since(start), max(r.ContentLength, 0), rw.Bytes)
		})
	}
}

// OTelTracing 提取上游 traceparent，为每个请求开一个 server span，
// 并把 trace id 写入 context 供日志关联
func OTelTracing() Middleware {
	tracer := otel.Tracer(telemetry.InstrumentationName + "/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route := normalizePath(r.URL.Path)
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if id, ok := types.RequestID(ctx); ok {
				span.SetAttributes(attribute.String("request.id", id))
			}
			if sc := span.SpanContext(); sc.HasTraceID() {
				ctx = types.WithTraceID(ctx, sc.TraceID().String())
			}

			rw := handlers.NewResponseWriter(w)
			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.StatusCode))
			if rw.StatusCode >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rw.StatusCode))
			}
		})
	}
}

// =============================================================================
// 🌐 CORS
// =============================================================================

const (
	corsMethods = "GET, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, X-API-Key, X-Request-ID"
	corsMaxAge  = "86400"
)

// CORS origins 为空时不输出任何 CORS 头；"*" 回显任意来源
func CORS(origins []string) Middleware {
	if len(origins) == 0 {
		return passThrough
	}
	anyOrigin := slices.Contains(origins, "*")
	allowed := func(origin string) bool {
		return origin != "" && (anyOrigin || slices.Contains(origins, origin))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			ok := allowed(origin)
			if ok {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", corsMethods)
				h.Set("Access-Control-Allow-Headers", corsHeaders)
				h.Set("Access-Control-Max-Age", corsMaxAge)
			}

			if r.Method != http.MethodOptions || origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			// 预检请求不进入业务 handler
			if ok {
				w.WriteHeader(http.StatusNoContent)
			} else {
				w.WriteHeader(http.StatusForbidden)
			}
		})
	}
}
