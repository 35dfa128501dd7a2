/*
包 metrics 提供基于 Prometheus 的指标采集。

Collector 通过 promauto.With 注册到指定 Registerer（默认
prometheus.DefaultRegisterer），由独立 metrics 端口经 promhttp 暴露。
测试中传入 prometheus.NewRegistry() 即可避免重复注册。

指标分组：

  - http_*：请求数（状态码归类为 2xx..5xx）、耗时、请求/响应体大小、在途请求数。
  - upstream_*：按 service（llm/vision/image）与 model 的调用次数与耗时。
  - llm_tokens_total：prompt 与 completion Token。
  - stage_*：流水线阶段耗时与 ok/soft/error 计数，Collector 同时实现 pipeline.Observer。
  - image_generations_total、cache_lookups_total。
  - build_info：WithBuildInfo 时导出。
*/
package metrics
