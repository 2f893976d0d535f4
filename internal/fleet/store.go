package fleet

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/agentfleet/hierarchy"
	"github.com/BaSui01/agentfleet/internal/database"
	"github.com/BaSui01/agentfleet/internal/metrics"
	"github.com/BaSui01/agentfleet/types"
)

// saveRetries bounds WithTransactionRetry attempts for Save.
const saveRetries = 3

// =============================================================================
// 🗄️ 持久化 agent
// =============================================================================

// AgentModel is the persisted agent row.
type AgentModel struct {
	ID        string    `gorm:"primaryKey;size:128"`
	Name      string    `gorm:"size:256"`
	Status    string    `gorm:"size:64;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name stable across model renames.
func (AgentModel) TableName() string { return "fleet_agents" }

// AgentStore is the system of record for known agents.
type AgentStore struct {
	pool    *database.PoolManager
	metrics *metrics.Collector
	logger  *zap.Logger
}

// NewAgentStore creates a store on pool. collector may be nil.
func NewAgentStore(pool *database.PoolManager, collector *metrics.Collector, logger *zap.Logger) *AgentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentStore{
		pool:    pool,
		metrics: collector,
		logger:  logger.With(zap.String("component", "agent_store")),
	}
}

// Migrate creates or updates the agent table.
func (s *AgentStore) Migrate(ctx context.Context) error {
	defer s.observe("migrate", time.Now())
	if err := s.pool.DB().WithContext(ctx).AutoMigrate(&AgentModel{}); err != nil {
		return storeError("migrate agent table", err)
	}
	return nil
}

// ListAgents returns every persisted agent ordered by id.
func (s *AgentStore) ListAgents(ctx context.Context) ([]hierarchy.PersistedAgent, error) {
	defer s.observe("list", time.Now())

	var rows []AgentModel
	if err := s.pool.DB().WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, storeError("list agents", err)
	}

	agents := make([]hierarchy.PersistedAgent, len(rows))
	for i, row := range rows {
		agents[i] = hierarchy.PersistedAgent{ID: row.ID, Name: row.Name, Status: row.Status}
	}
	return agents, nil
}

// Save upserts agents in one transaction. Blank ids are rejected.
func (s *AgentStore) Save(ctx context.Context, agents ...hierarchy.PersistedAgent) error {
	if len(agents) == 0 {
		return nil
	}
	rows := make([]AgentModel, 0, len(agents))
	for _, a := range agents {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return types.NewError(types.ErrInvalidRequest, "agent id is required")
		}
		rows = append(rows, AgentModel{ID: id, Name: a.Name, Status: a.Status})
	}

	defer s.observe("save", time.Now())
	err := s.pool.WithTransactionRetry(ctx, saveRetries, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "status", "updated_at"}),
		}).Create(&rows).Error
	})
	if err != nil {
		return storeError("save agents", err)
	}
	s.logger.Debug("agents saved", zap.Int("count", len(rows)))
	return nil
}

// Delete removes an agent. Deleting an unknown id is not an error.
func (s *AgentStore) Delete(ctx context.Context, id string) error {
	defer s.observe("delete", time.Now())
	if err := s.pool.DB().WithContext(ctx).Delete(&AgentModel{}, "id = ?", id).Error; err != nil {
		return storeError("delete agent", err)
	}
	return nil
}

func (s *AgentStore) observe(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery("agents", operation, time.Since(start))
	}
}

func storeError(op string, err error) error {
	return types.NewError(types.ErrStoreUnavailable, fmt.Sprintf("%s failed", op)).
		WithCause(err).
		WithRetryable(true)
}
