// Copyright (c) PromptFusion Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 PromptFusion HTTP API 的请求处理器实现。

# 概述

每个端点对应一个 Handler，依赖以小接口声明（FeatureAnalyzer、Refiner、
ImageGenerator、FeatureInterpolator 等），由 cmd/promptfusion 注入具体实现。
Handler 方法签名均为标准 http.HandlerFunc，由 Go 1.22 ServeMux 按方法与路径挂载。

# 核心类型

  - AnalyzeHandler：POST /api/analyze
  - GenerateHandler：POST /api/generate（润色 → 生成 → 回显分析）
  - InterpolateHandler：POST /api/interpolate
  - CatalogHandler：特征词表、可用模型、提示词增强
  - ProxyHandler：POST /api/proxy-image，远程图片转 data URI
  - HealthHandler：/api/health、/healthz、/ready、/version
  - Response / ErrorInfo：统一 JSON 信封

# 响应格式

业务端点将载荷的顶层字段平铺到信封中，同时保留 data 字段，
前端既可读取 url/prompt，也可读取 data.url。错误统一为
{"success": false, "error": {"code", "message", "retryable"}}，
ErrorCode 自动映射为 4xx/5xx。
*/
package handlers
