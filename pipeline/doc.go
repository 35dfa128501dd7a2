/*
包 pipeline 提供类型化的阶段流水线。

# 概述

Stage[I, O] 是一个带名字的步骤：Run(ctx, I) (O, error)。Then 将两个阶段
顺序组合，Run 在一次执行上下文中运行组合后的阶段并返回 Trace。

# 失败语义

  - 硬失败：阶段返回普通 error，流水线立即短路，错误包装为 *StageError，
    保留阶段名。
  - 软失败：阶段返回 Soft(err)，流水线记录该失败并以阶段同时返回的输出
    （通常为空值）继续执行。

每个叶子阶段都会被计时（Observer，生产环境为 Prometheus 收集器）
并包裹在一个 OpenTelemetry span 中。
*/
package pipeline
