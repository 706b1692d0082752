package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/theo-thinker/music-server-admission/logger"
)

// Manager holds named Redis clients.
type Manager struct {
	clients map[string]*redis.Client
	log     *logger.CtxZapLogger
	mu      sync.RWMutex
}

// NewManager creates clients for every configured instance and verifies
// connectivity with a ping.
func NewManager(configs map[string]Config, log *logger.CtxZapLogger) (*Manager, error) {
	if log == nil {
		log = logger.GetLogger("redis")
	}

	m := &Manager{
		clients: make(map[string]*redis.Client, len(configs)),
		log:     log,
	}

	ctx := context.Background()
	for name, cfg := range configs {
		cfg.ApplyDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("redis instance %q: %w", name, err)
		}

		client := redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			Password:     cfg.Password,
			DB:           cfg.DB,
			PoolSize:     cfg.PoolSize,
			MinIdleConns: cfg.MinIdleConns,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			m.closeAll()
			return nil, fmt.Errorf("redis instance %q ping failed: %w", name, err)
		}

		m.clients[name] = client
		log.Debug("redis instance connected",
			zap.String("instance", name),
			zap.String("addr", cfg.Addr),
			zap.Int("db", cfg.DB))
	}

	return m, nil
}

// Client returns a client by instance name, nil when unknown.
func (m *Manager) Client(name string) *redis.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[name]
}

// InstanceNames returns every configured instance name.
func (m *Manager) InstanceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.clients))
	for name := range m.clients {
		names = append(names, name)
	}
	return names
}

// Ping checks every instance; the first failure is returned.
func (m *Manager) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for name, client := range m.clients {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis instance %q: %w", name, err)
		}
	}
	return nil
}

// Close closes every client.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeAllLocked()
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = m.closeAllLocked()
}

func (m *Manager) closeAllLocked() error {
	var firstErr error
	for name, client := range m.clients {
		if err := client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close redis instance %q: %w", name, err)
		}
		delete(m.clients, name)
	}
	return firstErr
}

// Shutdown implements the samber/do Shutdownable interface.
func (m *Manager) Shutdown() error {
	return m.Close()
}
