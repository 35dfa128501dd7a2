/*
包 server 管理 HTTP 监听端口的生命周期。

Manager 负责单个端口：Start 同步绑定、后台 Serve，Shutdown 可重复调用。
Group 把 API 与 metrics 两个端口编组，Wait 在收到信号（由调用方的 ctx 表达）
或任一端口异常退出时返回，Shutdown 逆序关闭。
*/
package server
