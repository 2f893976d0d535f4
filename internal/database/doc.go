// 版权所有 2026 AgentFleet Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接池管理，为持久化 agent
存储打开 PostgreSQL 或 SQLite 连接。

# 概述

Open 根据 config.DatabaseConfig 选择 dialector（postgres 或
glebarez/sqlite 纯 Go 驱动），并通过 PoolManager 统一管理连接
生命周期。后台健康检查定时探活，Close 时停止并等待其退出。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置；内存 SQLite 会被强制为单连接。
  - PoolStats：友好格式的连接池统计信息。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 事务管理：WithTransaction 提供单次事务执行，
    WithTransactionRetry 在死锁、序列化失败或 SQLite 锁冲突时指数退避重试。
  - 统计采集：GetStats 返回结构化的连接池运行指标。
*/
package database
