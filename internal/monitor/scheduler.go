package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ItemLister is the slice of the monitor store the scheduler needs.
type ItemLister interface {
	ListEnabled(ctx context.Context, class Class) ([]Item, error)
}

// CheckFunc polls one item end to end: probe, track, decide, publish.
type CheckFunc func(ctx context.Context, item Item)

// DueFunc reports whether an item's own interval has elapsed.
type DueFunc func(item Item) bool

// ClassTick binds one item class to its loop cadence. The tick is how
// often the loop wakes up; each item is still polled at its own interval.
type ClassTick struct {
	Class Class
	Tick  time.Duration
}

// panicBackoff is how long a class loop pauses after recovering from a
// panic before resuming its ticks.
const panicBackoff = 5 * time.Second

// Scheduler runs one polling goroutine per item class. A panic inside a
// cycle is recovered and the loop resumes after a backoff, so one bad
// probe cannot take down monitoring for its class.
type Scheduler struct {
	store  ItemLister
	check  CheckFunc
	due    DueFunc
	ticks  []ClassTick
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler over the given class cadences.
func NewScheduler(store ItemLister, check CheckFunc, due DueFunc, ticks []ClassTick, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		check:  check,
		due:    due,
		ticks:  ticks,
		logger: logger,
	}
}

// Start launches the class loops. Non-blocking; Stop shuts them down.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	for _, ct := range s.ticks {
		s.wg.Add(1)
		go s.runClass(ct)
	}
}

// Stop cancels all loops and waits for in-flight cycles to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) runClass(ct ClassTick) {
	defer s.wg.Done()

	logger := s.logger.With(zap.String("class", string(ct.Class)))
	logger.Info("monitoring loop started", zap.Duration("tick", ct.Tick))

	ticker := time.NewTicker(ct.Tick)
	defer ticker.Stop()

	s.cycle(ct.Class, logger)

	for {
		select {
		case <-s.ctx.Done():
			logger.Info("monitoring loop stopped")
			return
		case <-ticker.C:
			s.cycle(ct.Class, logger)
		}
	}
}

// cycle polls every due item of one class, sequentially. Recovered
// panics pause the loop briefly instead of killing it.
func (s *Scheduler) cycle(class Class, logger *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("monitoring cycle panicked, backing off",
				zap.Any("panic", r),
				zap.Duration("backoff", panicBackoff),
			)
			select {
			case <-s.ctx.Done():
			case <-time.After(panicBackoff):
			}
		}
	}()

	items, err := s.store.ListEnabled(s.ctx, class)
	if err != nil {
		logger.Warn("failed to load items", zap.Error(err))
		return
	}

	for i := range items {
		if s.ctx.Err() != nil {
			return
		}
		if !s.due(items[i]) {
			continue
		}
		s.check(s.ctx, items[i])
	}
}
