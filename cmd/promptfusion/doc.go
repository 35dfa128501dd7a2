// Copyright (c) PromptFusion Authors.
// Licensed under the MIT License.

/*
Package main 提供 PromptFusion 服务端程序入口。

# 概述

cmd/promptfusion 装配补全服务、视觉编码器、图像后端与分析缓存，
对外暴露 /api/* HTTP 接口，并提供 health、version 子命令。

# 核心类型

  - Server：主服务器，管理 API 与 Metrics 双端口及优雅关闭
  - Middleware：HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、
    Metrics、CORS、RateLimiter、APIKeyAuth、JWTAuth
  - 缓存后端：memory / redis / none，Redis 不可达时回退到内存
  - 配置热更新：Reloader 轮询配置文件，log.level 变化即时生效
  - 优雅关闭：停止热更新 → 关闭 API → 关闭 Metrics → 关闭缓存 → 关闭 OTel
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
