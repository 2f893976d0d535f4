// Copyright (c) AgentFleet Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 AgentFleet HTTP API 的请求处理器实现。

# 概述

handlers 包实现层级图端点与健康检查端点，以及统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - HierarchyHandler — GET /api/v1/agents/hierarchy，支持 ?refresh=true
  - GraphSource      — 层级图来源接口（由 internal/fleet.Service 实现）
  - HealthHandler    — 服务健康检查（/health, /healthz, /ready, /version）
  - PingCheck        — 基于 ping 函数的可插拔检查（数据库、Redis）
  - Response         — 统一 JSON 错误/成功结构
  - ResponseWriter   — 包装 http.ResponseWriter 以捕获状态码

# 主要能力

  - ErrorCode → HTTP 状态码自动映射（4xx/5xx）
  - 非 GET 方法返回 405，来源加载失败返回 503
*/
package handlers
