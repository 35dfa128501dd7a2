package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request / pipeline error codes
const (
	ErrValidation         ErrorCode = "VALIDATION_ERROR"
	ErrParse              ErrorCode = "PARSE_ERROR"
	ErrBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrUnsupportedBackend ErrorCode = "UNSUPPORTED_BACKEND"
	ErrImageDecode        ErrorCode = "IMAGE_DECODE_ERROR"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrInsufficientInput  ErrorCode = "INSUFFICIENT_INPUT"
	ErrNoFeatures         ErrorCode = "NO_FEATURES"
)

// Transport error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// =============================================================================
// 🏷️ 分类构造函数
// =============================================================================

// Validation 请求字段缺失或非法（用户可修正）
func Validation(format string, args ...any) *Error {
	return NewError(ErrValidation, fmt.Sprintf(format, args...))
}

// Unsupported 未知的生成后端
func Unsupported(backend string, supported []string) *Error {
	return NewError(ErrUnsupportedBackend,
		fmt.Sprintf("unsupported model: %s. Supported models: %s", backend, joinNames(supported)))
}

// Unavailable 后端已知但运行时依赖缺失
func Unavailable(backend, hint string) *Error {
	return NewError(ErrBackendUnavailable,
		fmt.Sprintf("%s is not available: %s", backend, hint)).WithProvider(backend)
}

// ImageDecode 图像载荷无法解码为位图
func ImageDecode(cause error) *Error {
	return NewError(ErrImageDecode, "invalid image data format").WithCause(cause)
}

// Insufficient 插值输入中正权重条目不足
func Insufficient(positive int) *Error {
	return NewError(ErrInsufficientInput,
		fmt.Sprintf("at least 2 features with positive weight required, got %d", positive))
}

// Upstream wraps a failure from an external call, keeping the upstream message as-is.
// If err already is an *Error it is returned unchanged.
func Upstream(provider string, err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:     ErrUpstreamError,
		Message:  err.Error(),
		Provider: provider,
		Cause:    err,
	}
}

// AsError 提取 *Error（支持包装链）
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ", "
		}
		out += n
	}
	return out
}
