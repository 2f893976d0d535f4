// =============================================================================
// AgentFleet 主入口
// =============================================================================
// Agent 层级图仪表盘后端：HTTP API、MCP 服务、命令行导出
//
// 使用方法:
//
//	agentfleet serve --config fleet.yaml     # 启动 HTTP 服务
//	agentfleet graph --refresh --pretty      # 输出层级图 JSON
//	agentfleet mcp                           # 以 stdio 运行 MCP 服务
//	agentfleet agents import agents.yaml     # 导入持久化 agent
//	agentfleet health --addr http://localhost:8080
//	agentfleet version
// =============================================================================

// @title AgentFleet API
// @version 1.0.0
// @description Agent hierarchy graph for the fleet dashboard.

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/config"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/mcp"
	"github.com/BaSui01/agentfleet/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "graph":
		err = runGraph(os.Args[2:], os.Stdout)
	case "mcp":
		err = runMCP(os.Args[2:])
	case "agents":
		err = runAgents(os.Args[2:], os.Stdin, os.Stdout)
	case "health":
		err = runHealthCheck(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	return loader.Load()
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting AgentFleet",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, appOptions{metrics: true, watch: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			logger.Warn("cleanup failed", zap.Error(err))
		}
	}()

	srv := NewServer(cfg, app.service, app.collector, logger, app.HealthChecks()...)
	if err := srv.Start(); err != nil {
		return err
	}

	waitErr := srv.Wait(ctx)
	srv.Shutdown(context.Background())
	logger.Info("AgentFleet stopped")
	return waitErr
}

// =============================================================================
// 🕸️ graph 命令
// =============================================================================

func runGraph(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	refresh := fs.Bool("refresh", false, "Bypass the shared cache")
	pretty := fs.Bool("pretty", false, "Indent the JSON output")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout 只输出图数据
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	payload, err := api.BuildAgentHierarchyAPIPayload(ctx, func(ctx context.Context) (hierarchy.Graph, error) {
		return app.service.Graph(ctx, *refresh)
	})
	if err != nil {
		return err
	}
	return writePayload(out, payload, *pretty)
}

func writePayload(out io.Writer, payload api.AgentHierarchyPayload, pretty bool) error {
	enc := json.NewEncoder(out)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(payload)
}

// =============================================================================
// 🤖 mcp 命令
// =============================================================================

func runMCP(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	// stdout 是协议通道
	cfg.Log.OutputPaths = []string{"stderr"}
	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, logger, appOptions{watch: true})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.Background()) }()

	logger.Info("serving MCP over stdio", zap.String("name", cfg.MCP.ServerName))
	return mcp.ServeStdio(mcp.NewServer(cfg.MCP, Version, app.service, logger))
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	insecure := fs.Bool("insecure", false, "Skip TLS certificate verification")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	_ = fs.Parse(args)

	return checkHealth(*addr, *timeout, *insecure, out)
}

func checkHealth(addr string, timeout time.Duration, insecure bool, out io.Writer) error {
	client := tlsutil.HTTPClient(timeout, tlsutil.ClientConfig(insecure))
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}
	_, err = fmt.Fprintln(out, "OK")
	return err
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "AgentFleet %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `AgentFleet - agent hierarchy dashboard backend

Usage:
  agentfleet <command> [options]

Commands:
  serve     Start the HTTP API and metrics servers
  graph     Print the agent hierarchy as JSON
  mcp       Serve the hierarchy over MCP (stdio)
  agents    Manage persisted agents (list | import <file|-> | delete <id>...)
  health    Check server health
  version   Show version information
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)   [serve, graph, mcp, agents]
  --refresh         Rebuild instead of using the cache  [graph]
  --pretty          Indent JSON output                  [graph]
  --addr <url>      Server address                      [health]
  --insecure        Skip TLS verification               [health]

Examples:
  agentfleet serve --config /etc/agentfleet/config.yaml
  agentfleet graph --pretty
  agentfleet agents --config fleet.yaml import agents.yaml
  agentfleet health --addr https://fleet.internal:8443 --insecure`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
