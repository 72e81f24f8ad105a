// Package script runs recovery scripts on a bounded worker pool so the
// monitoring loops never block on script execution.
package script

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"winsentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

// Module implements the script execution plugin.
type Module struct {
	logger *zap.Logger
	config plugin.Config
	store  *Store
	pool   *Pool

	workers        int
	queueSize      int
	defaultTimeout time.Duration
}

// New creates the script module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:        "script",
		Version:     "0.1.0",
		Description: "Bounded worker pool for recovery scripts",
		Required:    true,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.config = deps.Config

	if err := deps.Store.Migrate(ctx, "script", migrations); err != nil {
		return fmt.Errorf("script migrations: %w", err)
	}

	m.store = NewStore(deps.Store)
	m.workers = m.config.GetInt("modules.script.workers")
	m.queueSize = m.config.GetInt("modules.script.queue_size")
	m.defaultTimeout = m.config.GetDuration("modules.script.default_timeout")

	m.pool = NewPool(m.store, m.workers, m.queueSize, m.defaultTimeout, m.logger)

	m.logger.Info("script module initialized",
		zap.Int("workers", m.workers),
		zap.Int("queue_size", m.queueSize),
		zap.Duration("default_timeout", m.defaultTimeout),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.workers < 1 {
		return fmt.Errorf("modules.script.workers must be >= 1, got %d", m.workers)
	}
	if m.queueSize < 1 {
		return fmt.Errorf("modules.script.queue_size must be >= 1, got %d", m.queueSize)
	}
	if m.defaultTimeout <= 0 {
		return fmt.Errorf("modules.script.default_timeout must be positive, got %s", m.defaultTimeout)
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.pool.Start(ctx)
	m.logger.Info("script module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.pool == nil {
		return nil
	}
	if err := m.pool.Stop(ctx); err != nil {
		return err
	}
	m.logger.Info("script module stopped")
	return nil
}

// Pool exposes the worker pool for callers that submit jobs.
func (m *Module) Pool() *Pool {
	return m.pool
}

// Store exposes persisted job history for the ops surface.
func (m *Module) Store() *Store {
	return m.store
}
