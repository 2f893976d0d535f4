// Copyright 2026 AgentFleet Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 hierarchy 将多个来源的 Agent 关系与权限描述合并为一张规范化的有向图。

来源包括：静态配置文档、运行时工具快照（runtime overlay）、旧版配置
（legacy overlay）、工作区中的自由文本文档，以及数据库中已持久化的 Agent。
Build 是纯函数：不做 I/O、不读时钟、不依赖 map 迭代顺序，相同输入总是
产出深度相等的 Graph，因此结果可以直接缓存与 diff。

# 核心类型

  - Input — Build 的全部输入（记录、overlay、SourceStatus、Options）
  - Graph — 输出图，含 nodes、edges 与 meta（warnings + sources）
  - GraphNode / GraphEdge / Warning — 图元素与异常报告
  - AgentRelationshipRecord — 配置文档与自由文本共享的中间结构
  - Overlay / ToolOverlayRecord — 工具 allow/deny 覆盖层

# 合并规则

  - 标识符按小写规范化键比较，DisplayID 保留首次出现的原始大小写
  - 能力解析顺序：runtime > legacy > 记录自带 > 全 false
  - delegate 能力只来自关系记录，overlay 不携带该标志
  - 自环丢弃、重复边合并、消息边推断均产生 Warning，从不返回错误
*/
package hierarchy
