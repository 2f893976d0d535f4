// 版权所有 2024 AgentFleet Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
层级图构建、缓存与数据库四个维度。

# 概述

Collector 使用 promauto 自动注册到默认 Registry，所有指标按 namespace
隔离；同一进程内 namespace 必须唯一（测试中用递增 namespace）。

# 主要能力

  - HTTP 指标：请求总数、耗时、响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 层级图指标：构建次数（success/error）、构建耗时、按 kind 的节点数、
    按 type 的边数、按 code 的告警计数、各来源可用性与加载耗时。
  - 缓存指标：命中与未命中计数。
  - 数据库指标：查询耗时 Histogram，按 database/operation 分组。
*/
package metrics
