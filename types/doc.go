// Copyright (c) PromptFusion Authors.
// Licensed under the MIT License.

/*
Package types 提供 PromptFusion 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 analysis、synth、interpolate、
api 等上层模块提供统一的错误契约和 Context 传播工具。

# 核心类型

  - Error / ErrorCode：结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记
  - Validation / Unsupported / Unavailable / ImageDecode / Insufficient / Upstream：按错误分类的构造函数

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithSubject
  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable
*/
package types
