package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/promptfusion/internal/tlsutil"
	"github.com/BaSui01/promptfusion/llm"
	"github.com/BaSui01/promptfusion/llm/providers"
)

// jsonClient 发送 JSON 请求并把响应解码到 out，错误统一为 *llm.Error
type jsonClient struct {
	provider string
	baseURL  string
	apiKey   string
	http     *http.Client
}

func newJSONClient(provider, baseURL, apiKey string, timeout time.Duration) *jsonClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &jsonClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		http:     tlsutil.SecureHTTPClient(timeout),
	}
}

func (c *jsonClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", c.provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", c.provider, err)
	}
	providers.BearerTokenHeaders(req, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return providers.NetworkError(err, c.provider)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), c.provider)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.badResponse("decode response: %v", err)
	}
	return nil
}

// badResponse 上游返回了 2xx 但内容不可用
func (c *jsonClient) badResponse(format string, args ...any) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrUpstreamError,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadGateway,
		Provider:   c.provider,
	}
}
