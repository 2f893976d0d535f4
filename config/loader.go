// =============================================================================
// 📦 AgentFleet 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentfleet.yaml").
//	    WithEnvPrefix("AGENTFLEET").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/agentfleet/hierarchy"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix is the environment prefix used when none is configured.
const DefaultEnvPrefix = "AGENTFLEET"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 AgentFleet 的完整配置结构
type Config struct {
	// Server HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Sources 层级数据来源
	Sources SourcesConfig `yaml:"sources" env:"SOURCES"`

	// Hierarchy 构建选项
	Hierarchy HierarchyConfig `yaml:"hierarchy" env:"HIERARCHY"`

	// Cache Redis 图缓存
	Cache CacheConfig `yaml:"cache" env:"CACHE"`

	// Database 持久化 agent 存储
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// MCP 服务配置
	MCP MCPConfig `yaml:"mcp" env:"MCP"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	TLSCertFile     string        `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile      string        `yaml:"tls_key_file" env:"TLS_KEY_FILE"`

	// RateLimitRPS 为 0 时关闭限流
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// APIKeys 为空时不校验 API Key
	APIKeys            []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey   bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// JWTConfig Bearer token 校验配置
type JWTConfig struct {
	Enabled  bool   `yaml:"enabled" env:"ENABLED"`
	Secret   string `yaml:"secret" env:"SECRET"`
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// SourcesConfig 描述层级构建读取的各个来源。留空的路径视为不可用来源。
type SourcesConfig struct {
	// ConfigPath 结构化配置文档 (YAML/JSON)
	ConfigPath string `yaml:"config_path" env:"CONFIG_PATH"`

	// RuntimeCommand 输出 agent 工具策略 JSON 的命令行
	RuntimeCommand string        `yaml:"runtime_command" env:"RUNTIME_COMMAND"`
	RuntimeTimeout time.Duration `yaml:"runtime_timeout" env:"RUNTIME_TIMEOUT"`

	// LegacyPath 旧版 JSON 配置
	LegacyPath string `yaml:"legacy_path" env:"LEGACY_PATH"`

	// WorkspaceRoot 自由文本文档所在目录
	WorkspaceRoot    string   `yaml:"workspace_root" env:"WORKSPACE_ROOT"`
	DocumentPatterns []string `yaml:"document_patterns" env:"DOCUMENT_PATTERNS"`
	MaxDocumentBytes int64    `yaml:"max_document_bytes" env:"MAX_DOCUMENT_BYTES"`

	// Watch 开启后文件变更会使缓存失效
	Watch         bool          `yaml:"watch" env:"WATCH"`
	WatchDebounce time.Duration `yaml:"watch_debounce" env:"WATCH_DEBOUNCE"`
}

// HierarchyConfig 构建选项
type HierarchyConfig struct {
	ReportsToPrecedence string        `yaml:"reports_to_precedence" env:"REPORTS_TO_PRECEDENCE"`
	BuildTimeout        time.Duration `yaml:"build_timeout" env:"BUILD_TIMEOUT"`
}

// CacheConfig Redis 缓存配置
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	KeyPrefix    string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL          time.Duration `yaml:"ttl" env:"TTL"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	AutoMigrate     bool          `yaml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MCPConfig MCP stdio 服务配置
type MCPConfig struct {
	ServerName   string `yaml:"server_name" env:"SERVER_NAME"`
	Instructions string `yaml:"instructions" env:"INSTRUCTIONS"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", l.configPath, err)
	}
	return nil
}

// setFieldsFromEnv 递归遍历 env tag，键名为 PREFIX_SECTION_FIELD
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := envTag
		if prefix != "" {
			envKey = prefix + "_" + envTag
		}

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort != 0 {
		if !validPort(c.Server.MetricsPort) {
			errs = append(errs, "invalid metrics port")
		} else if c.Server.MetricsPort == c.Server.HTTPPort {
			errs = append(errs, "metrics port must differ from HTTP port")
		}
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, "rate_limit_burst must be positive when rate limiting is enabled")
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, "tls_cert_file and tls_key_file must be set together")
	}
	if c.Server.JWT.Enabled && c.Server.JWT.Secret == "" {
		errs = append(errs, "jwt.secret is required when jwt is enabled")
	}

	if c.Sources.RuntimeCommand != "" && c.Sources.RuntimeTimeout <= 0 {
		errs = append(errs, "runtime_timeout must be positive")
	}
	if c.Sources.MaxDocumentBytes < 0 {
		errs = append(errs, "max_document_bytes must not be negative")
	}
	if c.Sources.WatchDebounce < 0 {
		errs = append(errs, "watch_debounce must not be negative")
	}

	switch hierarchy.ReportsToPrecedence(c.Hierarchy.ReportsToPrecedence) {
	case "", hierarchy.PreferConfigDocument, hierarchy.PreferFreeText:
	default:
		errs = append(errs, fmt.Sprintf("unknown reports_to_precedence %q", c.Hierarchy.ReportsToPrecedence))
	}

	if c.Cache.TTL < 0 {
		errs = append(errs, "cache ttl must not be negative")
	}
	if c.Cache.Enabled && c.Cache.Addr == "" {
		errs = append(errs, "cache addr is required when cache is enabled")
	}

	if c.Database.Enabled {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
		}
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
