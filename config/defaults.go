// =============================================================================
// 📦 AgentFleet 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/agentfleet/hierarchy"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Sources:   DefaultSourcesConfig(),
		Hierarchy: DefaultHierarchyConfig(),
		Cache:     DefaultCacheConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		MCP:       DefaultMCPConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultSourcesConfig 返回默认来源配置
func DefaultSourcesConfig() SourcesConfig {
	return SourcesConfig{
		RuntimeTimeout:   5 * time.Second,
		DocumentPatterns: []string{"IDENTITY.md", "SOUL.md", "AGENTS.md", "ROLE.md"},
		MaxDocumentBytes: 256 * 1024,
		WatchDebounce:    500 * time.Millisecond,
	}
}

// DefaultHierarchyConfig 返回默认构建选项
func DefaultHierarchyConfig() HierarchyConfig {
	return HierarchyConfig{
		ReportsToPrecedence: string(hierarchy.PreferConfigDocument),
		BuildTimeout:        20 * time.Second,
	}
}

// DefaultCacheConfig 返回默认 Redis 缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		KeyPrefix:    "agentfleet:",
		TTL:          30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "agentfleet",
		Name:            "agentfleet",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "agentfleet",
		SampleRate:   0.1,
	}
}

// DefaultMCPConfig 返回默认 MCP 配置
func DefaultMCPConfig() MCPConfig {
	return MCPConfig{
		ServerName:   "agentfleet",
		Instructions: "Read the agent hierarchy via the agentfleet://hierarchy resource or the agent_hierarchy tool.",
	}
}
