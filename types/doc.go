// Copyright (c) AgentFleet Authors.
// Licensed under the MIT License.

/*
Package types 提供 AgentFleet 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 api、internal/fleet、
cmd 等上层模块提供统一的错误码与 Context 传播约定。

# 核心类型

  - Error / ErrorCode — 结构化错误，含 HTTP 状态码、Retryable 与来源标记

# 主要能力

  - Context 传播：WithTraceID / WithRequestID / WithSubject
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
  - 常用错误构造：NewSourceUnavailableError
*/
package types
