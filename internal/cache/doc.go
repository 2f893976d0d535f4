// 版权所有 2024 AgentFleet Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的层级图缓存。

# 概述

Manager 封装 go-redis 客户端，为 internal/fleet.Service 提供带 TTL 的
层级图缓存。连接生命周期（初始化、后台健康检查、优雅关闭）由 Manager
管理；所有键都加上 Config.KeyPrefix 前缀。

# 核心类型

  - Manager：Get/Set/Delete/TTL 基础操作，以及 GetJSON/SetJSON 序列化方法
  - Config：地址、密码、键前缀、默认 TTL、连接池与健康检查间隔
  - Stats：本进程观察到的命中/未命中计数

# 错误语义

  - ErrCacheMiss / IsCacheMiss：未命中
  - ErrClosed：管理器关闭后的任何调用
*/
package cache
