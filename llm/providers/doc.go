/*
包 providers 收纳上游适配器共用的错误处理。

  - MapHTTPError：按状态码归类为 llm.Error 并标记是否可重试（408/429/5xx）。
  - NetworkError：传输失败归为上游错误，超时归为 ErrUpstreamTimeout。
  - ReadErrorMessage：解析 OpenAI 与 FastAPI 两种错误体。
  - BearerTokenHeaders：默认的 JSON + Bearer 请求头。

聊天补全实现位于子包 openaicompat，图像与向量服务位于 llm/image、llm/embedding。
*/
package providers
