package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/api"
	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm/image"
	"github.com/BaSui01/promptfusion/types"
	"go.uber.org/zap"
)

// 图片代理默认参数
const (
	DefaultProxyTimeout  = 10 * time.Second
	DefaultProxyMaxBytes = 10 << 20
)

// ProxyHandler 抓取远程图片并以 data URI 返回，供前端绕过跨域限制
type ProxyHandler struct {
	client   *http.Client
	maxBytes int64
	logger   *zap.Logger
}

// NewProxyHandler 创建图片代理处理器；零值参数取默认。
// allowPrivate 为 false 时拒绝解析到回环、链路本地或内网的目标。
func NewProxyHandler(timeout time.Duration, maxBytes int64, allowPrivate bool, logger *zap.Logger) *ProxyHandler {
	if timeout <= 0 {
		timeout = DefaultProxyTimeout
	}
	if maxBytes <= 0 {
		maxBytes = DefaultProxyMaxBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProxyHandler{
		client:   tlsutil.FetchHTTPClient(timeout, allowPrivate),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// HandleProxyImage 处理 POST /api/proxy-image
// @Summary 图片代理
// @Description 仅支持 http/https，响应必须是图片类型
// @Tags 生成
// @Accept json
// @Produce json
// @Param request body api.ProxyImageRequest true "图片 URL"
// @Success 200 {object} Response "data 为 data URI"
// @Failure 400 {object} Response "URL 无效"
// @Failure 502 {object} Response "抓取失败"
// @Router /api/proxy-image [post]
func (h *ProxyHandler) HandleProxyImage(w http.ResponseWriter, r *http.Request) {
	var req api.ProxyImageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		WriteError(w, r, types.Validation("Invalid or missing URL."), h.logger)
		return
	}

	dataURI, err := h.fetch(r, u.String())
	if err != nil {
		WriteError(w, r, err, h.logger)
		return
	}
	WriteSuccess(w, r, dataURI)
}

func (h *ProxyHandler) fetch(r *http.Request, target string) (string, error) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		return "", types.Validation("Invalid or missing URL.")
	}
	resp, err := h.client.Do(req)
	if errors.Is(err, tlsutil.ErrBlockedAddress) {
		h.logger.Warn("image fetch blocked", zap.String("url", target), zap.Error(err))
		return "", types.Validation("URL must point to a public address.")
	}
	if err != nil {
		h.logger.Warn("image fetch failed", zap.String("url", target), zap.Error(err))
		return "", types.NewError(types.ErrUpstreamError, "Failed to fetch image.").
			WithHTTPStatus(http.StatusBadGateway).
			WithCause(err)
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK || !strings.Contains(contentType, "image") {
		return "", types.NewError(types.ErrUpstreamError, "Failed to fetch a valid image.").
			WithHTTPStatus(http.StatusBadGateway).
			WithCause(fmt.Errorf("status=%d content-type=%q", resp.StatusCode, contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBytes+1))
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "Failed to fetch image.").
			WithHTTPStatus(http.StatusBadGateway).
			WithCause(err)
	}
	if int64(len(body)) > h.maxBytes {
		return "", types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("image exceeds %d bytes", h.maxBytes)).
			WithHTTPStatus(http.StatusBadGateway)
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		mediaType = "image/png"
	}
	return image.DataURI(mediaType, body), nil
}
