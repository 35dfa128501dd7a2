// Package tokenizer 提供 token 计数，用于在调用特征抽取模型前限制提示词长度。
// OpenAI 系列模型使用 tiktoken 精确计数；编码数据不可用时回退到 CJK 感知的估算器。
package tokenizer
