// Copyright (c) AgentFleet Authors.
// Licensed under the MIT License.

/*
Package main 提供 AgentFleet 服务端程序入口。

# 概述

cmd/agentfleet 装配层级图服务所需的全部组件：来源加载器、层级服务、
可选的 Redis 缓存与数据库存储、文件监听、OpenTelemetry 与 Prometheus。

# 子命令

  - serve   — HTTP API（/api/v1/agents/hierarchy、健康检查）与独立的 /metrics 端口
  - graph   — 构建一次层级图并输出 {"data": ...} JSON
  - mcp     — 通过 stdio 提供 MCP 资源与工具
  - health  — 探测运行中服务的 /health
  - version — 输出构建注入的版本信息

# 中间件链

Recovery、RequestID、OTelTracing、SecurityHeaders、RequestLogger、Metrics、
CORS、RateLimiter、APIKeyAuth、JWTAuth。未配置的认证与限流不进入链路。
*/
package main
