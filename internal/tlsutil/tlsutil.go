package tlsutil

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"syscall"
	"time"
)

// maxRedirects 图片代理允许的最大重定向次数
const maxRedirects = 3

// aeadSuites TLS 1.2 下允许的密码套件；TLS 1.3 套件由 Go 固定
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig 返回 TLS 1.2+、仅 AEAD 套件的客户端配置；每次返回新副本
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: slices.Clone(aeadSuites),
	}
}

// profile 描述一类上游的连接池参数
type profile struct {
	dialTimeout  time.Duration
	maxIdle      int
	maxIdlePer   int
	viaProxy     bool
	tlsHardening bool
}

var (
	// 公网托管服务：chat、embedding、DALL-E、Imagen
	publicProfile = profile{dialTimeout: 30 * time.Second, maxIdle: 100, viaProxy: true, tlsHardening: true}
	// 本机/内网推理服务：不走代理
	localProfile = profile{dialTimeout: 5 * time.Second, maxIdle: 10, maxIdlePer: 4}
)

func (p profile) transport() *http.Transport {
	tr := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   p.dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        p.maxIdle,
		MaxIdleConnsPerHost: p.maxIdlePer,
		IdleConnTimeout:     90 * time.Second,
	}
	if p.viaProxy {
		tr.Proxy = http.ProxyFromEnvironment
	}
	if p.tlsHardening {
		tr.TLSClientConfig = DefaultTLSConfig()
		tr.ForceAttemptHTTP2 = true
		tr.TLSHandshakeTimeout = 10 * time.Second
		tr.ExpectContinueTimeout = time.Second
	}
	return tr
}

// SecureTransport 公网上游使用的加固 Transport
func SecureTransport() *http.Transport { return publicProfile.transport() }

// SecureHTTPClient 用于 chat、embedding 与托管图像生成服务
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: SecureTransport()}
}

// LocalHTTPClient 用于本地 diffusion 运行时，超时由调用方按生成耗时给定
func LocalHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout, Transport: localProfile.transport()}
}

// ErrBlockedAddress 抓取目标解析到回环、链路本地或内网地址
var ErrBlockedAddress = errors.New("address is not publicly routable")

// 公网不可路由但 netip 没有单独判定的网段
var blockedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("64:ff9b::/96"),
}

func publicAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return false
	}
	for _, p := range blockedPrefixes {
		if p.Contains(ip) {
			return false
		}
	}
	return true
}

// denyPrivate 在 DNS 解析之后、建立连接之前检查目标 IP
func denyPrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return err
	}
	if !publicAddr(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, ip)
	}
	return nil
}

// FetchHTTPClient 用于图片代理抓取任意 URL：限制重定向次数与协议。
// allowPrivate 为 false 时拒绝连接非公网地址（含重定向后的目标），且不走环境代理。
func FetchHTTPClient(timeout time.Duration, allowPrivate bool) *http.Client {
	tr := SecureTransport()
	if !allowPrivate {
		tr.Proxy = nil
		tr.DialContext = (&net.Dialer{
			Timeout:   publicProfile.dialTimeout,
			KeepAlive: 30 * time.Second,
			Control:   denyPrivate,
		}).DialContext
	}
	return &http.Client{
		Timeout:       timeout,
		Transport:     tr,
		CheckRedirect: limitRedirects,
	}
}

func limitRedirects(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("too many redirects")
	}
	switch req.URL.Scheme {
	case "http", "https":
		return nil
	default:
		return errors.New("redirect to unsupported scheme")
	}
}
