// Copyright (c) PromptFusion Authors.
// Licensed under the MIT License.

/*
包 llm 定义 PromptFusion 访问外部模型服务时使用的统一类型。

# 概述

三类上游服务各自有独立的子包：

  - providers/openaicompat：OpenAI 兼容的聊天补全（特征抽取、提示词润色与组合）
  - embedding：CLIP 类视觉-文本向量模型（图像与词表相似度打分）
  - image：图像生成后端（DALL·E、本地 Stable Diffusion、Imagen）

本包只提供共享的 [Provider] 接口、[ChatRequest] / [ChatResponse] 与
[Error]。所有适配器把 HTTP 状态映射为带 [ErrorCode] 的 [Error]，
上层再统一转换为 types.Error 返回给客户端。

# 辅助包

  - tokenizer：基于 tiktoken 的 token 计数，用于限制提示词长度
*/
package llm
