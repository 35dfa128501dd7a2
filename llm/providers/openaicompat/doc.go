// Package openaicompat 实现 OpenAI 兼容的聊天补全客户端。
//
// 特征抽取、提示词润色、特征组合与增强都通过该客户端访问
// POST {BaseURL}/v1/chat/completions；健康检查使用 GET {BaseURL}/v1/models。
// 任何遵循 OpenAI 协议的服务（OpenAI、DeepSeek、vLLM、Ollama 等）都可直接接入。
package openaicompat
