package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger  *zap.Logger
	checks  []HealthCheck
	timeout time.Duration
	mu      sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// DetailedCheck 可选接口：检查结果附带诊断信息（连接池、缓存统计等）
type DetailedCheck interface {
	HealthCheck
	Details(ctx context.Context) any
}

// ServiceHealthResponse 健康状态响应
type ServiceHealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
	Details any    `json:"details,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger:  logger.With(zap.String("component", "health_handler")),
		checks:  make([]HealthCheck, 0),
		timeout: 5 * time.Second,
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（简单健康检查）
// @Summary 健康检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 活跃度探针，只检查进程存活）
// @Summary Kubernetes 活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	h.HandleHealth(w, r)
}

// HandleReady 处理 /ready 请求（就绪检查，逐个执行已注册的检查）
// @Summary 准备情况检查
// @Tags 健康
// @Produce json
// @Success 200 {object} ServiceHealthResponse "服务已准备就绪"
// @Failure 503 {object} ServiceHealthResponse "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := h.Evaluate(ctx)
	if status.Status != "healthy" {
		WriteJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// Evaluate 执行全部检查并汇总结果
func (h *HealthHandler) Evaluate(ctx context.Context) ServiceHealthResponse {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := ServiceHealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	for _, check := range checks {
		start := time.Now()
		err := check.Check(ctx)
		latency := time.Since(start)

		result := CheckResult{Status: "pass", Latency: latency.String()}
		if err != nil {
			result.Status = "fail"
			result.Message = err.Error()
			status.Status = "unhealthy"

			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Error(err),
				zap.Duration("latency", latency),
			)
		}
		if dc, ok := check.(DetailedCheck); ok {
			result.Details = dc.Details(ctx)
		}
		status.Checks[check.Name()] = result
	}
	return status
}

// CheckNames 返回已注册检查的名称（排序后）
func (h *HealthHandler) CheckNames() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.checks))
	for _, c := range h.checks {
		names = append(names, c.Name())
	}
	sort.Strings(names)
	return names
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteSuccess(w, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// PingCheck 以 ping 函数实现 HealthCheck（数据库、Redis 等）
type PingCheck struct {
	name    string
	ping    func(ctx context.Context) error
	details func(ctx context.Context) any
}

// NewPingCheck 创建基于 ping 函数的健康检查
func NewPingCheck(name string, ping func(ctx context.Context) error) *PingCheck {
	return &PingCheck{name: name, ping: ping}
}

// WithDetails 附加诊断信息，随 /ready 结果一起返回
func (c *PingCheck) WithDetails(fn func(ctx context.Context) any) *PingCheck {
	c.details = fn
	return c
}

func (c *PingCheck) Name() string {
	return c.name
}

func (c *PingCheck) Check(ctx context.Context) error {
	return c.ping(ctx)
}

func (c *PingCheck) Details(ctx context.Context) any {
	if c.details == nil {
		return nil
	}
	return c.details(ctx)
}
