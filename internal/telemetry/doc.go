// Package telemetry 封装 OpenTelemetry SDK 初始化（OTLP gRPC 导出 trace 与 metric）。
// StageMeter 以 OTel 仪表记录流水线阶段；LogFields 把当前 span 写入日志字段。
// 遥测关闭时只安装传播器，全局 provider 保持 noop。
package telemetry
