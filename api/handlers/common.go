package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// MaxBodyBytes 请求体上限（图像以 base64 内联，需要留足空间）
const MaxBodyBytes = 16 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	Provider   string `json:"provider,omitempty"`
	HTTPStatus int    `json:"-"` // 不序列化到 JSON
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应，data 仅出现在信封内
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteResult 写入成功响应：payload 放入 data，同时把其字段平铺到顶层
func WriteResult(w http.ResponseWriter, r *http.Request, payload any, logger *zap.Logger) {
	raw, err := json.Marshal(payload)
	if err != nil {
		WriteError(w, r, types.NewError(types.ErrInternalError, "failed to encode response").WithCause(err), logger)
		return
	}

	body := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &body); err != nil {
		// 非对象 payload 只放进 data
		body = map[string]json.RawMessage{}
	}
	body["success"] = json.RawMessage("true")
	body["data"] = raw
	body["timestamp"] = mustRaw(time.Now())
	if id := requestID(r); id != "" {
		body["request_id"] = mustRaw(id)
	}
	WriteJSON(w, http.StatusOK, body)
}

// WriteError 写入错误信封；非 *types.Error 的错误一律视为 INTERNAL_ERROR
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal server error").WithCause(err)
	}
	status := apiErr.HTTPStatus
	if status == 0 {
		status = statusForCode(apiErr.Code)
	}
	logAPIError(logger, r, apiErr, status)

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:       string(apiErr.Code),
			Message:    apiErr.Message,
			Retryable:  apiErr.Retryable,
			Provider:   apiErr.Provider,
			HTTPStatus: status,
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// logAPIError 5xx 记 Error，其余记 Warn
func logAPIError(logger *zap.Logger, r *http.Request, e *types.Error, status int) {
	if logger == nil {
		return
	}
	fields := make([]zap.Field, 0, 7)
	fields = append(fields,
		zap.String("code", string(e.Code)),
		zap.String("message", e.Message),
		zap.Int("status", status),
		zap.Bool("retryable", e.Retryable),
		zap.String("request_id", requestID(r)),
	)
	if e.Provider != "" {
		fields = append(fields, zap.String("provider", e.Provider))
	}
	if e.Cause != nil {
		fields = append(fields, zap.Error(e.Cause))
	}
	if status >= http.StatusInternalServerError {
		logger.Error("API error", fields...)
		return
	}
	logger.Warn("API error", fields...)
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := types.RequestID(r.Context())
	return id
}

func mustRaw(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// =============================================================================
// 🔄 错误码到 HTTP 状态码映射
// =============================================================================

var codeStatus = map[types.ErrorCode]int{
	types.ErrValidation:         http.StatusBadRequest,
	types.ErrInvalidRequest:     http.StatusBadRequest,
	types.ErrUnsupportedBackend: http.StatusBadRequest,
	types.ErrImageDecode:        http.StatusBadRequest,
	types.ErrInsufficientInput:  http.StatusBadRequest,
	types.ErrUnauthorized:       http.StatusUnauthorized,
	types.ErrRateLimited:        http.StatusTooManyRequests,
	types.ErrNoFeatures:         http.StatusUnprocessableEntity,
	types.ErrUpstreamTimeout:    http.StatusGatewayTimeout,
	types.ErrBackendUnavailable: http.StatusServiceUnavailable,
	types.ErrServiceUnavailable: http.StatusServiceUnavailable,
	types.ErrUpstreamError:      http.StatusBadGateway,
	types.ErrInternalError:      http.StatusInternalServerError,
}

// statusForCode 未登记的错误码按 500 处理
func statusForCode(code types.ErrorCode) int {
	if status, ok := codeStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体（大小受 MaxBodyBytes 限制，拒绝未知字段）。
// 失败时已写出错误响应。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var tooLarge *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			msg = "request body is empty"
		case errors.As(err, &tooLarge):
			msg = "request body too large"
		}
		apiErr := types.NewError(types.ErrInvalidRequest, msg).
			WithCause(err).
			WithHTTPStatus(http.StatusBadRequest)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}

	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与响应大小
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Unwrap 供 http.ResponseController 访问底层 writer
func (rw *ResponseWriter) Unwrap() http.ResponseWriter { return rw.ResponseWriter }
