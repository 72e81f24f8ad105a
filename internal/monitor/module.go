// Package monitor polls monitored items (ports, processes, services,
// system resources), tracks status streaks across restarts, and fires
// recovery scripts according to the retry policy.
package monitor

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

// ActionRequest describes one recovery script submission.
type ActionRequest struct {
	Type    ScriptType
	Content string
	Path    string

	Class    Class
	ItemID   int64
	ItemName string
	Target   string
	Status   Status
	Attempt  int
}

// ActionRunner executes recovery scripts without blocking the caller.
// The returned id identifies the queued job.
type ActionRunner interface {
	Submit(ctx context.Context, req ActionRequest) (string, error)
}

// Module implements the monitoring plugin.
type Module struct {
	logger  *zap.Logger
	config  plugin.Config
	bus     plugin.EventBus
	store   *Store
	tracker *Tracker
	probers map[Class]Prober
	runner  ActionRunner
	sched   *Scheduler

	tick         time.Duration
	resourceTick time.Duration
}

// New creates the monitor module.
func New() *Module {
	return &Module{}
}

func (m *Module) Info() plugin.PluginInfo {
	return plugin.PluginInfo{
		Name:         "monitor",
		Version:      "0.1.0",
		Description:  "Port, process, service, and resource monitoring",
		Dependencies: []string{"script"},
		Required:     true,
	}
}

func (m *Module) Init(ctx context.Context, deps plugin.Dependencies) error {
	m.logger = deps.Logger
	m.config = deps.Config
	m.bus = deps.Bus

	if err := deps.Store.Migrate(ctx, "monitor", migrations); err != nil {
		return fmt.Errorf("monitor migrations: %w", err)
	}

	m.store = NewStore(deps.Store)
	m.tracker = NewTracker(m.store, m.logger)
	m.probers = map[Class]Prober{
		ClassPort:     PortProber{},
		ClassProcess:  ProcessProber{},
		ClassService:  NewServiceProber(),
		ClassResource: ResourceProber{},
	}

	m.tick = m.config.GetDuration("modules.monitor.tick")
	m.resourceTick = m.config.GetDuration("modules.monitor.resource_tick")

	m.logger.Info("monitor module initialized",
		zap.Duration("tick", m.tick),
		zap.Duration("resource_tick", m.resourceTick),
	)
	return nil
}

// ValidateConfig implements plugin.Validator.
func (m *Module) ValidateConfig() error {
	if m.tick <= 0 {
		return fmt.Errorf("modules.monitor.tick must be positive, got %s", m.tick)
	}
	if m.resourceTick <= 0 {
		return fmt.Errorf("modules.monitor.resource_tick must be positive, got %s", m.resourceTick)
	}
	return nil
}

// SetActionRunner wires the script execution pool. Called by the
// composition root before Start; without a runner, policy decisions are
// logged but no scripts fire.
func (m *Module) SetActionRunner(r ActionRunner) {
	m.runner = r
}

// Store exposes item CRUD for the ops surface.
func (m *Module) Store() *Store {
	return m.store
}

func (m *Module) Start(ctx context.Context) error {
	ticks := []ClassTick{
		{Class: ClassPort, Tick: m.tick},
		{Class: ClassProcess, Tick: m.tick},
		{Class: ClassService, Tick: m.tick},
		{Class: ClassResource, Tick: m.resourceTick},
	}
	m.sched = NewScheduler(m.store, m.checkOne, m.tracker.Due, ticks, m.logger)
	m.sched.Start(ctx)
	m.logger.Info("monitor module started")
	return nil
}

func (m *Module) Stop(ctx context.Context) error {
	if m.sched != nil {
		m.sched.Stop()
	}
	m.logger.Info("monitor module stopped")
	return nil
}

// checkOne polls a single item: probe, fold into the tracker, publish
// events, and apply the action policy.
func (m *Module) checkOne(ctx context.Context, item Item) {
	prober, ok := m.probers[item.Class]
	if !ok {
		m.logger.Error("no prober for class", zap.String("class", string(item.Class)))
		return
	}

	start := time.Now()
	snap := prober.Probe(ctx, item)
	checkDuration.WithLabelValues(string(item.Class)).Observe(time.Since(start).Seconds())
	checksTotal.WithLabelValues(string(item.Class), string(snap.Status)).Inc()

	if snap.Err != nil {
		probeErrorsTotal.WithLabelValues(string(item.Class)).Inc()
		m.logger.Warn("probe fault",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
			zap.String("target", item.Target()),
			zap.Error(snap.Err),
		)
	}

	obs := m.tracker.Observe(ctx, item, snap)

	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicStatusChecked,
		Source:    "monitor",
		Timestamp: obs.State.LastCheck,
		Payload: StatusCheckedEvent{
			Class:     item.Class,
			ItemID:    item.ID,
			ItemName:  item.Name,
			Target:    item.Target(),
			Status:    obs.State.Status,
			Count:     obs.State.Count,
			Value:     snap.Value,
			Threshold: item.Threshold,
			At:        obs.State.LastCheck,
		},
	})

	if tr := obs.Transition; tr != nil {
		transitionsTotal.WithLabelValues(string(item.Class)).Inc()
		m.logger.Info("status changed",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
			zap.String("target", item.Target()),
			zap.String("from", string(tr.From)),
			zap.String("to", string(tr.To)),
			zap.Bool("initial", tr.Initial),
		)
		m.bus.PublishAsync(ctx, plugin.Event{
			Topic:     TopicStatusChanged,
			Source:    "monitor",
			Timestamp: tr.At,
			Payload: StatusChangedEvent{
				Class:    item.Class,
				ItemID:   item.ID,
				ItemName: item.Name,
				Target:   item.Target(),
				From:     tr.From,
				To:       tr.To,
				At:       tr.At,
				Initial:  tr.Initial,
			},
		})
	}

	m.applyPolicy(ctx, item, obs.State)
}

func (m *Module) applyPolicy(ctx context.Context, item Item, st State) {
	dec := Evaluate(item, st)
	if !dec.Fire {
		return
	}
	if m.runner == nil {
		m.logger.Warn("action due but no runner wired",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
		)
		return
	}

	attempt := st.ActionsTaken + 1
	jobID, err := m.runner.Submit(ctx, ActionRequest{
		Type:     dec.Action.Type,
		Content:  dec.Action.Content,
		Path:     dec.Action.Path,
		Class:    item.Class,
		ItemID:   item.ID,
		ItemName: item.Name,
		Target:   item.Target(),
		Status:   st.Status,
		Attempt:  attempt,
	})
	if err != nil {
		m.logger.Error("failed to submit recovery script",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
			zap.String("target", item.Target()),
			zap.Error(err),
		)
		return
	}

	m.tracker.MarkAction(item.Key())
	actionsTotal.WithLabelValues(string(item.Class)).Inc()
	m.logger.Info("recovery script submitted",
		zap.String("class", string(item.Class)),
		zap.Int64("item_id", item.ID),
		zap.String("target", item.Target()),
		zap.String("job_id", jobID),
		zap.Int("attempt", attempt),
	)

	m.bus.PublishAsync(ctx, plugin.Event{
		Topic:     TopicActionFired,
		Source:    "monitor",
		Timestamp: time.Now(),
		Payload: ActionFiredEvent{
			Class:    item.Class,
			ItemID:   item.ID,
			ItemName: item.Name,
			Target:   item.Target(),
			Status:   st.Status,
			JobID:    jobID,
			Attempt:  attempt,
			At:       time.Now(),
		},
	})
}
