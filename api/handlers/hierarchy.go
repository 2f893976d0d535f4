package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/BaSui01/agentfleet/api"
	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/types"
	"go.uber.org/zap"
)

// =============================================================================
// 🕸️ Agent 层级图 Handler
// =============================================================================

// GraphSource 提供层级图；refresh 为 true 时绕过缓存
type GraphSource interface {
	Graph(ctx context.Context, refresh bool) (hierarchy.Graph, error)
}

// HierarchyHandler 层级图处理器
type HierarchyHandler struct {
	source GraphSource
	logger *zap.Logger
}

// NewHierarchyHandler 创建层级图处理器
func NewHierarchyHandler(source GraphSource, logger *zap.Logger) *HierarchyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyHandler{
		source: source,
		logger: logger.With(zap.String("component", "hierarchy_handler")),
	}
}

// HandleHierarchy 处理 GET /api/v1/agents/hierarchy
// @Summary Agent 层级图
// @Description 返回合并后的 Agent 层级图（nodes、edges、warnings、sources）
// @Tags Agent
// @Produce json
// @Param refresh query bool false "绕过缓存重新构建"
// @Success 200 {object} api.AgentHierarchyPayload "层级图"
// @Failure 400 {object} Response "参数错误"
// @Failure 405 {object} Response "方法不允许"
// @Failure 503 {object} Response "来源加载失败"
// @Router /api/v1/agents/hierarchy [get]
func (h *HierarchyHandler) HandleHierarchy(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, h.logger, http.MethodGet) {
		return
	}

	refresh := false
	if raw := r.URL.Query().Get("refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			WriteError(w, r, types.NewError(types.ErrInvalidRequest, "refresh must be a boolean").WithCause(err), h.logger)
			return
		}
		refresh = v
	}

	payload, err := api.BuildAgentHierarchyAPIPayload(r.Context(), func(ctx context.Context) (hierarchy.Graph, error) {
		return h.source.Graph(ctx, refresh)
	})
	if err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, payload)
}

func toAPIError(err error) *types.Error {
	if apiErr, ok := types.AsError(err); ok {
		return apiErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return types.NewError(types.ErrTimeout, "hierarchy build timed out").WithCause(err).WithRetryable(true)
	}
	return types.NewError(types.ErrHierarchyBuildFailed, "agent hierarchy unavailable").
		WithCause(err).
		WithHTTPStatus(http.StatusServiceUnavailable).
		WithRetryable(true)
}
