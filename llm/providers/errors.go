package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/BaSui01/promptfusion/llm"
)

// 529 为部分厂商的"模型过载"
const statusOverloaded = 529

// maxErrorBody 错误体最多读取 64KiB
const maxErrorBody = 64 << 10

// quotaHints 400 响应里出现这些词时视为额度耗尽
var quotaHints = []string{"quota", "credit", "limit"}

// MapHTTPError 把上游非 2xx 响应归类为 llm.Error。
// 408/429/5xx 可重试，其余 4xx 不可重试。
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	code, retryable := classifyStatus(status, msg)
	return &llm.Error{
		Code:       code,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  retryable,
		Provider:   provider,
	}
}

func classifyStatus(status int, msg string) (llm.ErrorCode, bool) {
	switch status {
	case http.StatusUnauthorized:
		return llm.ErrUnauthorized, false
	case http.StatusForbidden:
		return llm.ErrForbidden, false
	case http.StatusTooManyRequests:
		return llm.ErrRateLimited, true
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llm.ErrUpstreamTimeout, true
	case statusOverloaded:
		return llm.ErrModelOverloaded, true
	case http.StatusBadRequest:
		lower := strings.ToLower(msg)
		for _, hint := range quotaHints {
			if strings.Contains(lower, hint) {
				return llm.ErrQuotaExceeded, false
			}
		}
		return llm.ErrInvalidRequest, false
	}
	return llm.ErrUpstreamError, status >= 500
}

// NetworkError 包装传输层失败；超时单独归为 ErrUpstreamTimeout
func NetworkError(err error, provider string) *llm.Error {
	e := &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		e.Code = llm.ErrUpstreamTimeout
		e.HTTPStatus = http.StatusGatewayTimeout
	}
	return e
}

// upstreamErrorBody 同时覆盖 OpenAI 风格与 FastAPI 风格的错误体
type upstreamErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
	Detail string `json:"detail"`
}

// ReadErrorMessage 从错误响应体中提取可读消息，无法解析时返回原文
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}

	var parsed upstreamErrorBody
	if json.Unmarshal(data, &parsed) == nil {
		switch {
		case parsed.Error.Message != "" && parsed.Error.Type != "":
			return fmt.Sprintf("%s (type: %s)", parsed.Error.Message, parsed.Error.Type)
		case parsed.Error.Message != "":
			return parsed.Error.Message
		case parsed.Detail != "":
			return parsed.Detail
		}
	}
	return strings.TrimSpace(string(data))
}

// BearerTokenHeaders 设置 JSON 请求头，apiKey 非空时附带 Bearer 认证
func BearerTokenHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
