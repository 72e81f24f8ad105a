package alert

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RecurringRunner fires recurring rules on their wall-clock schedules.
// It wakes on a coarse tick and dispatches every rule that has become
// due since its last run.
type RecurringRunner struct {
	store  *Store
	engine *Engine
	tick   time.Duration
	logger *zap.Logger
	nowFn  func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRecurringRunner creates a runner waking every tick.
func NewRecurringRunner(store *Store, engine *Engine, tick time.Duration, logger *zap.Logger) *RecurringRunner {
	return &RecurringRunner{
		store:  store,
		engine: engine,
		tick:   tick,
		logger: logger,
		nowFn:  time.Now,
	}
}

// Start launches the schedule loop. Non-blocking.
func (r *RecurringRunner) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.tick)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.runDue()
			}
		}
	}()
}

// Stop cancels the loop and waits for an in-flight dispatch to finish.
func (r *RecurringRunner) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

func (r *RecurringRunner) runDue() {
	rules, err := r.store.ListEnabled(r.ctx, KindRecurring)
	if err != nil {
		r.logger.Warn("failed to load recurring rules", zap.Error(err))
		return
	}

	now := r.nowFn()
	for _, rule := range rules {
		if r.ctx.Err() != nil {
			return
		}
		if !Due(rule, now) {
			continue
		}
		r.engine.FireRecurring(r.ctx, rule)
	}
}

// Due reports whether a recurring rule should fire at now, given its
// schedule and last run.
//
// Interval schedules fire when the period has elapsed since the last
// run (immediately if never run). Daily schedules fire once per day at
// the configured clock time: the rule is due when now has passed today's
// occurrence and the last run predates it.
func Due(rule Rule, now time.Time) bool {
	switch rule.Schedule {
	case ScheduleInterval:
		if rule.LastRunAt.IsZero() {
			return true
		}
		return now.Sub(rule.LastRunAt) >= rule.Every

	case ScheduleDaily:
		clock, err := parseClock(rule.At)
		if err != nil {
			return false
		}
		today := time.Date(now.Year(), now.Month(), now.Day(),
			clock.Hour(), clock.Minute(), 0, 0, now.Location())
		if now.Before(today) {
			return false
		}
		return rule.LastRunAt.Before(today)
	}
	return false
}
