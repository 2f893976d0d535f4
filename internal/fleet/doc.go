// Copyright 2026 AgentFleet Authors
// Use of this source code is governed by the project license.

/*
Package fleet 把层级构建器接入真实的数据来源。

# 组成

  - SourceLoader：并发读取配置文档、运行时命令输出、旧版配置、
    工作区文档与持久化 agent，任何来源失败都只体现在来源状态中。
  - AgentStore：基于 GORM 的持久化 agent 存储（PostgreSQL 或 SQLite）。
  - Service：缓存 → singleflight 合并 → 加载 → 构建 → 指标/追踪/日志 → 回写缓存。
  - Watcher：基于 fsnotify 监听来源文件，防抖后使缓存失效。

# 失败语义

SourceLoader.Load 只在上下文结束时返回错误。Service.Graph 在加载失败时
返回 HIERARCHY_BUILD_FAILED（或 TIMEOUT）类型错误，缓存故障只记日志。
*/
package fleet
