package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/agentfleet/config"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🧪 PoolManager 测试
// =============================================================================

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{Conn: mockDB})
	gormDB, err := gorm.Open(dialector, &gorm.Config{DisableAutomaticPing: true})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func testPoolConfig() PoolConfig {
	return PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5}
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	cfg := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, cfg, zap.NewNop())
	require.NoError(t, err)

	assert.Same(t, gormDB, manager.DB())
	assert.Equal(t, cfg, manager.config)
	assert.Equal(t, 10, manager.GetStats().MaxOpenConnections)
}

func TestNewPoolManager_Rejects(t *testing.T) {
	_, err := NewPoolManager(nil, testPoolConfig(), nil)
	assert.Error(t, err)

	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()
	_, err = NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 2, MaxIdleConns: 4}, nil)
	assert.ErrorContains(t, err, "invalid pool config")
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectPing()
	assert.NoError(t, manager.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(sql.ErrConnDone)
	assert.ErrorIs(t, manager.Ping(context.Background()), sql.ErrConnDone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return assert.AnError })
	assert.ErrorIs(t, err, assert.AnError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin().WillReturnError(errors.New("ERROR: deadlock detected"))
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, testPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		return errors.New("unique constraint violated")
	})
	assert.ErrorContains(t, err, "unique constraint")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_Close(t *testing.T) {
	_, mock, gormDB := setupTestDB(t)

	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	assert.ErrorIs(t, manager.Ping(context.Background()), ErrPoolClosed)
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_HealthCheckLoop(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	mock.ExpectPing()
	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        10,
		MaxIdleConns:        5,
		HealthCheckInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, time.Second, 10*time.Millisecond)

	mock.ExpectClose()
	require.NoError(t, manager.Close())
}

// =============================================================================
// 🧪 Open / 配置派生
// =============================================================================

func TestOpen_SQLiteMemory(t *testing.T) {
	pm, err := Open(config.DatabaseConfig{Driver: "sqlite", Name: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pm.Close() })

	require.NoError(t, pm.Ping(context.Background()))
	assert.Equal(t, 1, pm.GetStats().MaxOpenConnections)

	type probe struct{ ID int }
	err = pm.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&probe{}); err != nil {
			return err
		}
		return tx.Create(&probe{ID: 1}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, pm.DB().Model(&probe{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDialector(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.DatabaseConfig
		wantErr string
		wantDlc string
	}{
		{"postgres", config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432}, "", "postgres"},
		{"sqlite", config.DatabaseConfig{Driver: "sqlite", Name: "fleet.db"}, "", "sqlite"},
		{"sqlite without name", config.DatabaseConfig{Driver: "sqlite"}, "not configured", ""},
		{"missing driver", config.DatabaseConfig{}, "driver not configured", ""},
		{"unsupported", config.DatabaseConfig{Driver: "mysql"}, "unsupported", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Dialector(tt.cfg)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDlc, d.Name())
		})
	}
}

func TestPoolConfigFrom(t *testing.T) {
	pc := PoolConfigFrom(config.DatabaseConfig{Driver: "postgres", MaxOpenConns: 20, MaxIdleConns: 4})
	assert.Equal(t, 20, pc.MaxOpenConns)
	assert.Equal(t, 4, pc.MaxIdleConns)
	assert.Equal(t, time.Hour, pc.ConnMaxLifetime)

	mem := PoolConfigFrom(config.DatabaseConfig{Driver: "sqlite", Name: "file::memory:?cache=shared", MaxOpenConns: 20})
	assert.Equal(t, 1, mem.MaxOpenConns)
	assert.Equal(t, 1, mem.MaxIdleConns)
}

func TestPoolConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  PoolConfig
		wantErr bool
	}{
		{"valid config", PoolConfig{MaxOpenConns: 10, MaxIdleConns: 5, ConnMaxLifetime: time.Hour}, false},
		{"unlimited open", PoolConfig{MaxOpenConns: 0, MaxIdleConns: 5}, false},
		{"negative open", PoolConfig{MaxOpenConns: -1}, true},
		{"idle > open", PoolConfig{MaxOpenConns: 5, MaxIdleConns: 10}, true},
		{"negative duration", PoolConfig{ConnMaxIdleTime: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, isRetryableError(nil))
	assert.True(t, isRetryableError(errors.New("pq: deadlock detected")))
	assert.True(t, isRetryableError(errors.New("SQLSTATE 40001")))
	assert.True(t, isRetryableError(errors.New("database is locked")))
	assert.True(t, isRetryableError(errors.New("driver: bad connection")))
	assert.False(t, isRetryableError(errors.New("record not found")))
}
