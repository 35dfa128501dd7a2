// Package synth 按模型名把生成请求路由到 llm/image 中的后端，并产出统一的 Result。
package synth
