// Copyright 2026 AgentFleet Authors
// Use of this source code is governed by the project license.

/*
# 概述

包 extract 把各来源的原始形态转换为 hierarchy 包的中间记录。

每个来源有独立的类型化原始结构与一个纯转换函数：

  - ParseConfigDocument / ExtractConfigDocument — 按 Agent id 组织的 YAML/JSON 配置文档
  - ParseRuntimeSnapshot / ExtractRuntimeOverlay — 运行时 CLI 输出的工具快照
  - ParseLegacyConfig / ExtractLegacyOverlay — 旧版 JSON 配置（全局消息开关）
  - ExtractFreeText — 工作区中身份/角色说明文档的启发式解析

# 容错

格式错误的单条记录被静默跳过，不会使整个来源失败。自由文本解析
遵循"无匹配即无记录"：不匹配任何规则的文档不产生记录，也不返回错误。
*/
package extract
