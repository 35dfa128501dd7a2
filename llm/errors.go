package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/promptfusion/types"
)

// ErrorCode 上游适配器错误分类
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "LLM_INVALID_REQUEST"
	ErrUnauthorized        ErrorCode = "LLM_UNAUTHORIZED"
	ErrForbidden           ErrorCode = "LLM_FORBIDDEN" // 含内容策略拒绝
	ErrRateLimited         ErrorCode = "LLM_RATE_LIMITED"
	ErrQuotaExceeded       ErrorCode = "LLM_QUOTA_EXCEEDED"
	ErrModelOverloaded     ErrorCode = "LLM_MODEL_OVERLOADED"
	ErrUpstreamTimeout     ErrorCode = "LLM_UPSTREAM_TIMEOUT"
	ErrUpstreamError       ErrorCode = "LLM_UPSTREAM_ERROR" // 5xx、网络错误或响应无法解析
	ErrProviderUnavailable ErrorCode = "LLM_PROVIDER_UNAVAILABLE"
)

// Error chat、embedding、image 三类适配器共用的错误
type Error struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int // 上游返回的状态；本地构造时为建议状态
	Retryable  bool
	Provider   string
}

func (e *Error) Error() string { return e.Message }

// ServiceError 在服务边界把适配器错误转成 *types.Error：
// 未配置 → BACKEND_UNAVAILABLE(503)，超时 → UPSTREAM_TIMEOUT(504)，其余 → UPSTREAM_ERROR(502)。
// 上游消息原样保留；已是 *types.Error 的直接返回。
func ServiceError(provider string, err error) *types.Error {
	if err == nil {
		return nil
	}
	if te, ok := types.AsError(err); ok {
		return te
	}

	var le *Error
	if !errors.As(err, &le) {
		if errors.Is(err, context.DeadlineExceeded) {
			return timeoutError(provider, "upstream call timed out", err)
		}
		return types.Upstream(provider, err)
	}

	if le.Provider != "" {
		provider = le.Provider
	}
	switch le.Code {
	case ErrProviderUnavailable:
		return types.NewError(types.ErrBackendUnavailable, le.Message).
			WithHTTPStatus(http.StatusServiceUnavailable).
			WithProvider(provider).
			WithCause(err)
	case ErrUpstreamTimeout:
		return timeoutError(provider, le.Message, err)
	default:
		return types.Upstream(provider, err).WithRetryable(le.Retryable)
	}
}

func timeoutError(provider, msg string, cause error) *types.Error {
	return types.NewError(types.ErrUpstreamTimeout, msg).
		WithHTTPStatus(http.StatusGatewayTimeout).
		WithRetryable(true).
		WithProvider(provider).
		WithCause(cause)
}
