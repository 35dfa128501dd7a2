package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/BaSui01/promptfusion/api/handlers"
	"github.com/BaSui01/promptfusion/config"
	"github.com/BaSui01/promptfusion/types"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// =============================================================================
// 🔐 认证
// =============================================================================

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	handlers.WriteErrorMessage(w, r, http.StatusUnauthorized, types.ErrUnauthorized, msg, nil)
}

// exempt 预检请求与 skipPaths 不做认证
func exempt(r *http.Request, skipPaths []string) bool {
	return r.Method == http.MethodOptions || slices.Contains(skipPaths, r.URL.Path)
}

// APIKeyAuth 校验 X-API-Key；validKeys 为空时不启用。
// allowQuery 为 true 时也接受 ?api_key=。
func APIKeyAuth(validKeys, skipPaths []string, allowQuery bool, logger *zap.Logger) Middleware {
	if len(validKeys) == 0 {
		return passThrough
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r, skipPaths) {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" && allowQuery {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" || !slices.Contains(validKeys, key) {
				logger.Debug("api key rejected", zap.String("path", r.URL.Path))
				unauthorized(w, r, "invalid or missing API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// jwtVerifier 支持 HS256（共享密钥）与 RS256（PEM 公钥）
type jwtVerifier struct {
	secret []byte
	rsaKey *rsa.PublicKey
	opts   []jwt.ParserOption
}

var (
	errNoHMACSecret = errors.New("HMAC secret not configured")
	errNoRSAKey     = errors.New("RSA public key not configured")
)

func newJWTVerifier(cfg config.JWTConfig, logger *zap.Logger) *jwtVerifier {
	v := &jwtVerifier{
		secret: []byte(cfg.Secret),
		opts:   []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "RS256"})},
	}
	if cfg.PublicKey != "" {
		key, err := parseRSAPublicKey(cfg.PublicKey)
		if err != nil {
			logger.Warn("RS256 verification disabled", zap.Error(err))
		}
		v.rsaKey = key
	}
	if cfg.Issuer != "" {
		v.opts = append(v.opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		v.opts = append(v.opts, jwt.WithAudience(cfg.Audience))
	}
	return v
}

func (v *jwtVerifier) key(token *jwt.Token) (any, error) {
	switch alg := token.Method.Alg(); alg {
	case "HS256":
		if len(v.secret) == 0 {
			return nil, errNoHMACSecret
		}
		return v.secret, nil
	case "RS256":
		if v.rsaKey == nil {
			return nil, errNoRSAKey
		}
		return v.rsaKey, nil
	default:
		return nil, fmt.Errorf("unexpected signing method %q", alg)
	}
}

// verify 返回校验通过的 claims
func (v *jwtVerifier) verify(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, err := jwt.ParseWithClaims(raw, claims, v.key, v.opts...); err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTAuth 校验 Authorization: Bearer，通过后把 sub 写入 context。
// Secret 与 PublicKey 都为空时不启用。
func JWTAuth(cfg config.JWTConfig, skipPaths []string, logger *zap.Logger) Middleware {
	if !cfg.Enabled() {
		return passThrough
	}
	verifier := newJWTVerifier(cfg, logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exempt(r, skipPaths) {
				next.ServeHTTP(w, r)
				return
			}
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				unauthorized(w, r, "missing or malformed Authorization header")
				return
			}
			claims, err := verifier.verify(raw)
			if err != nil {
				logger.Debug("jwt rejected", zap.Error(err))
				unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := r.Context()
			if claims.Subject != "" {
				ctx = types.WithSubject(ctx, claims.Subject)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parseRSAPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("public key: no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("public key: %w", err)
	}
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key: got %T, want RSA", pub)
	}
	return key, nil
}
