// Package config 提供 PromptFusion 的配置管理功能。
//
// 配置按 默认值 → YAML → 环境变量（PROMPTFUSION_ 前缀）叠加，
// 可选的 .env 文件在加载前补充进程环境。Reloader 轮询配置文件的修改时间，
// 变更时重新加载并回调，用于运行时调整日志级别等可热更新字段。
package config
