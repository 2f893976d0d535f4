// 版权所有 2024 AgentFleet Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理。

# 概述

Manager 封装 net/http.Server，统一管理监听、服务、关闭与错误传播。
agentfleet serve 为 API 端口和 metrics 端口各创建一个 Manager。

# 核心类型

  - Manager：Start/Shutdown/Run 生命周期方法与异步错误通道
  - Config：监听地址、可选 TLS 证书、读写/空闲超时与优雅关闭超时

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务
  - Run：阻塞到 ctx 取消或服务器异常退出，然后优雅关闭
  - TLS：TLSCertFile 与 TLSKeyFile 同时设置时以 HTTPS 启动
  - 状态查询：IsRunning/Addr（启动后返回实际监听地址）
*/
package server
