// Package alert turns monitor events into email notifications: rule
// matching, template rendering, SMTP delivery, and recurring reports.
package alert

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"winsentry/internal/monitor"
	"winsentry/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Plugin    = (*Module)(nil)
	_ plugin.Validator = (*Module)(nil)
)

// Module implements the alerting plugin. It subscribes to the monitor
// module's topics on Start and unsubscribes on Stop.
type Module struct {
	logger *zap.Logger
	config plugin.Config
	bus    plugin.EventBus
	store  *Store
	engine *Engine
	runner *RecurringRunner

	recurringTick time.Duration
	unsubscribe   []func()
}

// New creates the alert module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "alert",
		Version:      "0.1.0",
		Description:  "Email alerting on monitor events",
		Dependencies: []string{"monitor"},
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.config = deps.Config
	m.bus = deps.Bus

	if err := deps.Store.Migrate(ctx, "alert", migrations); err != nil {
		return fmt.Errorf("alert migrations: %w", err)
	}

	m.store = NewStore(deps.Store)
	m.engine = NewEngine(m.store, SMTPSender{}, m.logger)
	m.recurringTick = m.config.GetDuration("modules.alert.recurring_tick")
	m.runner = NewRecurringRunner(m.store, m.engine, m.recurringTick, m.logger)

	m.logger.Info("alert module initialized",
		zap.Duration("recurring_tick", m.recurringTick))
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.recurringTick <= 0 {
		return fmt.Errorf("modules.alert.recurring_tick must be positive, got %s", m.recurringTick)
	}
	return nil
}

func (m *Module) Start(ctx context.Context) error {
	m.unsubscribe = append(m.unsubscribe,
		m.bus.Subscribe(monitor.TopicStatusChanged, func(ctx context.Context, ev plugin.Event) {
			if payload, ok := ev.Payload.(monitor.StatusChangedEvent); ok {
				m.engine.HandleStatusChanged(ctx, payload)
			}
		}),
		m.bus.Subscribe(monitor.TopicStatusChecked, func(ctx context.Context, ev plugin.Event) {
			if payload, ok := ev.Payload.(monitor.StatusCheckedEvent); ok {
				m.engine.HandleStatusChecked(ctx, payload)
			}
		}),
	)

	m.runner.Start(ctx)
	m.logger.Info("alert module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	for _, unsub := range m.unsubscribe {
		unsub()
	}
	m.unsubscribe = nil

	if m.runner != nil {
		m.runner.Stop()
	}
	m.logger.Info("alert module stopped")
	return nil
}

// Store exposes rule and template CRUD for the ops surface.
func (m *Module) Store() *Store {
	return m.store
}

// Engine exposes the rule engine, mainly for tests and manual firing.
func (m *Module) Engine() *Engine {
	return m.engine
}
