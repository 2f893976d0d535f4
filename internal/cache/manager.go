// Package cache provides the Redis-backed hierarchy graph cache.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// =============================================================================
// 💾 缓存管理器
// =============================================================================

// Manager 缓存管理器
type Manager struct {
	redis  *redis.Client
	config Config
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// Config 缓存配置
type Config struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr" env:"ADDR"`

	// 密码
	Password string `yaml:"password" json:"password" env:"PASSWORD"`

	// 数据库编号
	DB int `yaml:"db" json:"db" env:"DB"`

	// 键前缀，多个部署共用一个 Redis 时区分命名空间
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" env:"KEY_PREFIX"`

	// 默认过期时间
	DefaultTTL time.Duration `yaml:"default_ttl" json:"default_ttl" env:"DEFAULT_TTL"`

	// 最大重试次数
	MaxRetries int `yaml:"max_retries" json:"max_retries" env:"MAX_RETRIES"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size" env:"POOL_SIZE"`

	// 健康检查间隔，0 表示关闭
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:                "localhost:6379",
		KeyPrefix:           "agentfleet:",
		DefaultTTL:          30 * time.Second,
		MaxRetries:          3,
		PoolSize:            10,
		HealthCheckInterval: 30 * time.Second,
	}
}

// NewManager 创建缓存管理器，连接不可用时返回错误
func NewManager(config Config, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := redis.NewClient(&redis.Options{
		Addr:       config.Addr,
		Password:   config.Password,
		DB:         config.DB,
		MaxRetries: config.MaxRetries,
		PoolSize:   config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	m := &Manager{
		redis:  client,
		config: config,
		logger: logger.With(zap.String("component", "cache")),
		done:   make(chan struct{}),
	}

	if config.HealthCheckInterval > 0 {
		m.wg.Add(1)
		go m.healthCheckLoop()
	}

	m.logger.Info("cache manager initialized",
		zap.String("addr", config.Addr),
		zap.String("key_prefix", config.KeyPrefix),
		zap.Duration("default_ttl", config.DefaultTTL),
	)

	return m, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

func (m *Manager) key(k string) string {
	return m.config.KeyPrefix + k
}

// Get 获取缓存值，未命中返回 ErrCacheMiss
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return "", ErrClosed
	}

	val, err := m.redis.Get(ctx, m.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		m.misses.Add(1)
		return "", ErrCacheMiss
	}
	if err != nil {
		m.logger.Error("cache get failed", zap.String("key", key), zap.Error(err))
		return "", fmt.Errorf("cache get failed: %w", err)
	}

	m.hits.Add(1)
	return val, nil
}

// Set 设置缓存值，ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}

	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}

	if err := m.redis.Set(ctx, m.key(key), value, ttl).Err(); err != nil {
		m.logger.Error("cache set failed", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("cache set failed: %w", err)
	}
	return nil
}

// GetJSON 获取 JSON 缓存值
func (m *Manager) GetJSON(ctx context.Context, key string, dest interface{}) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 设置 JSON 缓存值
func (m *Manager) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除缓存值
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		return nil
	}

	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = m.key(k)
	}
	if err := m.redis.Del(ctx, prefixed...).Err(); err != nil {
		m.logger.Error("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
		return fmt.Errorf("cache delete failed: %w", err)
	}
	return nil
}

// TTL 返回键的剩余过期时间
func (m *Manager) TTL(ctx context.Context, key string) (time.Duration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}
	d, err := m.redis.TTL(ctx, m.key(key)).Result()
	if err != nil {
		return 0, fmt.Errorf("cache ttl failed: %w", err)
	}
	return d, nil
}

// Ping 检查 Redis 连接
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return ErrClosed
	}
	return m.redis.Ping(ctx).Err()
}

// Close 关闭缓存管理器并等待健康检查协程退出
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.done)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("closing cache manager")
	return m.redis.Close()
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

func (m *Manager) healthCheckLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := m.Ping(ctx); err != nil {
				m.logger.Error("cache health check failed", zap.Error(err))
			} else {
				m.logger.Debug("cache health check passed")
			}
			cancel()
		}
	}
}

// =============================================================================
// 📊 统计信息
// =============================================================================

// Stats 本进程观察到的缓存命中统计
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
}

// GetStats 获取缓存统计信息
func (m *Manager) GetStats() Stats {
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load()}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

var (
	// ErrCacheMiss 缓存未命中错误
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为缓存未命中错误
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}
