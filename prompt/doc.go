// Package prompt 封装对聊天补全服务的改写调用：生成前润色、插值合成、
// 合成后润色以及 /api/enhance 增强。所有调用不重试，空补全视为上游错误。
package prompt
