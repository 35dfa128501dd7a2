// Package tlsutil 为所有出站 HTTP 客户端与 Redis 连接提供统一的传输配置：
// 公网上游使用加固 TLS（TLS 1.2+，仅 AEAD 密码套件），本地推理服务使用普通连接池。
package tlsutil
