// Package config 提供 AgentFleet 的配置加载。
//
// 配置按 默认值 → YAML 文件 → AGENTFLEET_* 环境变量 的顺序叠加，
// 环境变量名由结构体 env tag 拼接而成，例如 AGENTFLEET_SOURCES_CONFIG_PATH。
package config
