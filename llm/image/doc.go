/*
包 image 提供统一的图像生成后端抽象。

# 核心接口

  - Provider：Generate + Name，所有后端的统一入口。
  - Prober：可选的可用性探测（本地 Stable Diffusion 运行时）。
  - GenerateRequest / GenerateResponse / ImageData：请求与响应模型。

# 内置后端

  - OpenAIProvider：DALL·E（POST /v1/images/generations），返回上游 URL。
  - DiffusionProvider：AUTOMATIC1111 兼容的本地 Stable Diffusion
    （POST /sdapi/v1/txt2img），尺寸限定在固定集合并向下取整到 8 的倍数，
    返回 PNG data URI。
  - ImagenProvider：Google Imagen（google.golang.org/genai），返回 data URI。

所有后端的上游失败都是 *llm.Error，由上层映射为 UPSTREAM_ERROR。
*/
package image
