// Package cache 提供可注入的键值缓存抽象（Store）及其内存与 Redis 实现。
// 分析结果按提示词哈希缓存，缓存失败只记录日志，不影响请求。
package cache
