package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/promptfusion/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON_Headers(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusAccepted, http.StatusBadGateway} {
		w := httptest.NewRecorder()
		WriteJSON(w, status, []string{"watercolor", "neon"})

		assert.Equal(t, status, w.Code)
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.JSONEq(t, `["watercolor","neon"]`, w.Body.String())
	}
}

func TestWriteSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-1"))

	WriteSuccess(w, r, "data:image/png;base64,AAA")

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "data:image/png;base64,AAA", resp.Data)
	assert.Nil(t, resp.Error)
	assert.False(t, resp.Timestamp.IsZero())
	assert.Equal(t, "req-1", resp.RequestID)
}

func TestWriteResult_MirrorsFields(t *testing.T) {
	type payload struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		Prompt  string `json:"prompt"`
	}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/generate", nil)
	r = r.WithContext(types.WithRequestID(r.Context(), "req-2"))

	WriteResult(w, r, payload{Success: true, URL: "https://x/y.png", Prompt: "p"}, zap.NewNop())

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "https://x/y.png", body["url"])
	assert.Equal(t, "p", body["prompt"])
	assert.Equal(t, "req-2", body["request_id"])
	assert.NotEmpty(t, body["timestamp"])

	data, ok := body["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "https://x/y.png", data["url"])
}

func TestWriteError(t *testing.T) {
	cases := map[string]struct {
		err       error
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		"validation":          {types.Validation("prompt is required"), http.StatusBadRequest, types.ErrValidation, false},
		"unsupported backend": {types.Unsupported("unknown-model", []string{"dall-e-3"}), http.StatusBadRequest, types.ErrUnsupportedBackend, false},
		"backend unavailable": {types.Unavailable("stable-diffusion", "not installed"), http.StatusServiceUnavailable, types.ErrBackendUnavailable, false},
		"upstream retryable":  {types.Upstream("openai", errors.New("bad gateway")).WithRetryable(true), http.StatusBadGateway, types.ErrUpstreamError, true},
		"no features":         {types.NewError(types.ErrNoFeatures, "No features found"), http.StatusUnprocessableEntity, types.ErrNoFeatures, false},
		"plain error":         {errors.New("boom"), http.StatusInternalServerError, types.ErrInternalError, false},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, httptest.NewRequest(http.MethodPost, "/api/generate", nil), tc.err, zap.NewNop())
			require.Equal(t, tc.status, w.Code)

			var env Response
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
			assert.False(t, env.Success)
			assert.Nil(t, env.Data)
			require.NotNil(t, env.Error)
			assert.Equal(t, string(tc.code), env.Error.Code)
			assert.Equal(t, tc.retryable, env.Error.Retryable)
			assert.NotEmpty(t, env.Error.Message)
		})
	}
}

func TestWriteError_LogLevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)
	r := httptest.NewRequest(http.MethodPost, "/", nil)

	WriteError(httptest.NewRecorder(), r, types.Validation("bad"), logger)
	WriteError(httptest.NewRecorder(), r, types.Upstream("openai", errors.New("down")), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "openai", entries[1].ContextMap()["provider"])
}

type decodeTarget struct {
	Prompt string  `json:"prompt"`
	Weight float64 `json:"weight"`
}

func TestDecodeJSONBody(t *testing.T) {
	decode := func(body string) (decodeTarget, int, error) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/api/interpolate", strings.NewReader(body))
		var dst decodeTarget
		err := DecodeJSONBody(w, r, &dst, zap.NewNop())
		return dst, w.Code, err
	}

	got, _, err := decode(`{"prompt":"foggy harbor","weight":0.25}`)
	require.NoError(t, err)
	assert.Equal(t, decodeTarget{Prompt: "foggy harbor", Weight: 0.25}, got)

	for _, body := range []string{``, `{"prompt":"x",}`, `{"prompt":"x","seed":3}`, `[1,2]`} {
		_, status, err := decode(body)
		require.Error(t, err, body)
		assert.Equal(t, http.StatusBadRequest, status, body)
		assert.True(t, types.IsCode(err, types.ErrInvalidRequest), body)
	}
}

func TestDecodeJSONBody_NilBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/analyze", nil)
	var dst decodeTarget
	err := DecodeJSONBody(w, r, &dst, nil)

	apiErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "request body is empty", apiErr.Message)
}

func TestDecodeJSONBody_TooLarge(t *testing.T) {
	body := bytes.NewBufferString(`{"prompt":"`)
	body.WriteString(strings.Repeat("a", MaxBodyBytes))
	body.WriteString(`"}`)

	var dst decodeTarget
	err := DecodeJSONBody(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/analyze", body), &dst, nil)

	apiErr, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, "request body too large", apiErr.Message)
}

func TestResponseWriter_CapturesFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	require.Equal(t, http.StatusOK, rw.StatusCode)
	require.False(t, rw.Written)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	_, _ = rw.Write([]byte("abc"))
	_, _ = rw.Write([]byte("de"))
	assert.EqualValues(t, 5, rw.Bytes)
	assert.Same(t, rec, rw.Unwrap())
}

func TestResponseWriter_ImplicitOK(t *testing.T) {
	rw := NewResponseWriter(httptest.NewRecorder())
	_, err := rw.Write([]byte("x"))
	require.NoError(t, err)
	assert.True(t, rw.Written)
	assert.Equal(t, http.StatusOK, rw.StatusCode)
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrValidation, http.StatusBadRequest},
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrImageDecode, http.StatusBadRequest},
		{types.ErrInsufficientInput, http.StatusBadRequest},
		{types.ErrUnsupportedBackend, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrNoFeatures, http.StatusUnprocessableEntity},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
		{"UNKNOWN_CODE", http.StatusInternalServerError}, // 默认
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, statusForCode(tt.code))
		})
	}
}
