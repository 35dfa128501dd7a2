package tlsutil

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultTLSConfig(t *testing.T) {
	cfg := DefaultTLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	require.NotEmpty(t, cfg.CipherSuites)
	for _, cs := range cfg.CipherSuites {
		switch cs {
		case tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305:
		default:
			t.Errorf("unexpected non-AEAD cipher suite: %d", cs)
		}
	}
}

func TestSecureHTTPClient(t *testing.T) {
	client := SecureHTTPClient(15 * time.Second)
	assert.Equal(t, 15*time.Second, client.Timeout)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, uint16(tls.VersionTLS12), tr.TLSClientConfig.MinVersion)
	assert.True(t, tr.ForceAttemptHTTP2)
}

func TestLocalHTTPClient(t *testing.T) {
	client := LocalHTTPClient(2 * time.Minute)
	assert.Equal(t, 2*time.Minute, client.Timeout)
	tr, ok := client.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, tr.Proxy)
}

func TestFetchHTTPClient_LimitsRedirects(t *testing.T) {
	hops := 0
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	client := FetchHTTPClient(5*time.Second, true)
	client.Transport = srv.Client().Transport

	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many redirects")
	assert.Equal(t, maxRedirects, hops)
}

func TestFetchHTTPClient_RejectsPrivateTargets(t *testing.T) {
	hit := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = true
	}))
	defer srv.Close()

	_, err := FetchHTTPClient(time.Second, false).Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
	assert.False(t, hit)

	resp, err := FetchHTTPClient(time.Second, true).Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.True(t, hit)
}

func TestDenyPrivate(t *testing.T) {
	blocked := []string{
		"127.0.0.1:80",
		"10.1.2.3:443",
		"172.16.0.1:80",
		"192.168.1.10:80",
		"169.254.169.254:80",
		"100.64.0.1:80",
		"0.0.0.0:80",
		"[::1]:80",
		"[fe80::1]:80",
		"[fd00::1]:80",
		"[::ffff:192.168.1.1]:80",
	}
	for _, addr := range blocked {
		assert.ErrorIs(t, denyPrivate("tcp", addr, nil), ErrBlockedAddress, addr)
	}

	for _, addr := range []string{"93.184.216.34:443", "[2606:4700::1111]:443", "8.8.8.8:80"} {
		assert.NoError(t, denyPrivate("tcp", addr, nil), addr)
	}
}

func TestDefaultTLSConfig_ReturnsCopies(t *testing.T) {
	a := DefaultTLSConfig()
	a.CipherSuites[0] = 0
	b := DefaultTLSConfig()
	assert.NotEqual(t, uint16(0), b.CipherSuites[0])
}

func TestLimitRedirects_RejectsScheme(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.URL.Scheme = "file"
	require.Error(t, limitRedirects(req, nil))

	req.URL.Scheme = "https"
	require.NoError(t, limitRedirects(req, nil))
}
