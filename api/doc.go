// Package api 定义 PromptFusion HTTP API 的请求与响应结构。
//
// # API Overview
//
// PromptFusion 提供以下 JSON 端点：
//   - POST /api/analyze          提示词（及可选图像）特征分析
//   - POST /api/generate         润色提示词后生成图像
//   - POST /api/interpolate      按权重混合多组特征并生成图像
//   - POST /api/enhance          提示词增强
//   - POST /api/proxy-image      抓取远程图片并以 data URI 返回
//   - GET  /api/features/available, /api/models, /api/health
//
// 所有响应都带有统一信封 {success, data, error, timestamp, request_id}，
// 核心端点同时把业务字段平铺在顶层，兼容旧前端。
//
// # Authentication
//
// 配置了 API Key 时需携带 X-API-Key 头；配置了 JWT 时需携带 Bearer Token。
//
// # Base URL
//
//	http://localhost:5000
package api
