package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/promptfusion/types"
	"github.com/stretchr/testify/assert"
)

func TestProxyHandler(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{1, 2})
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg; charset=binary")
			w.Write([]byte{1, 2})
		case "/page":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		case "/big":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	h := NewProxyHandler(time.Second, 32, true, nil)

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantData   string
		wantCode   types.ErrorCode
	}{
		{"png", srv.URL + "/ok.png", http.StatusOK, "data:image/png;base64,AQI=", ""},
		{"jpeg keeps media type", srv.URL + "/ok.jpg", http.StatusOK, "data:image/jpeg;base64,AQI=", ""},
		{"not an image", srv.URL + "/page", http.StatusBadGateway, "", types.ErrUpstreamError},
		{"missing", srv.URL + "/nope", http.StatusBadGateway, "", types.ErrUpstreamError},
		{"too large", srv.URL + "/big", http.StatusBadGateway, "", types.ErrUpstreamError},
		{"bad scheme", "file:///etc/passwd", http.StatusBadRequest, "", types.ErrValidation},
		{"empty", "", http.StatusBadRequest, "", types.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := post(t, h.HandleProxyImage, "/api/proxy-image", `{"url":"`+tt.url+`"}`)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantCode != "" {
				assert.Equal(t, string(tt.wantCode), errorCode(body))
				return
			}
			assert.Equal(t, true, body["success"])
			assert.Equal(t, tt.wantData, body["data"])
		})
	}
}

func TestProxyHandler_RejectsPrivateAddress(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte{1, 2})
	}))
	t.Cleanup(srv.Close)

	h := NewProxyHandler(time.Second, 32, false, nil)
	for _, target := range []string{srv.URL + "/ok.png", "http://169.254.169.254/latest/meta-data"} {
		w, body := post(t, h.HandleProxyImage, "/api/proxy-image", `{"url":"`+target+`"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, string(types.ErrValidation), errorCode(body), target)
	}
	assert.False(t, hit)
}
