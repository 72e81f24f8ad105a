package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeLister serves a fixed item list without a database.
type fakeLister struct {
	items map[Class][]Item
	calls atomic.Int64
}

func (f *fakeLister) ListEnabled(_ context.Context, class Class) ([]Item, error) {
	f.calls.Add(1)
	return f.items[class], nil
}

func alwaysDue(Item) bool { return true }

func TestScheduler_ChecksDueItems(t *testing.T) {
	lister := &fakeLister{items: map[Class][]Item{
		ClassPort: {portItem(1), portItem(2)},
	}}

	var checked atomic.Int64
	check := func(_ context.Context, _ Item) { checked.Add(1) }

	s := NewScheduler(lister, check, alwaysDue,
		[]ClassTick{{Class: ClassPort, Tick: 20 * time.Millisecond}}, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	// First cycle runs immediately, then ticks: at least 2 full cycles.
	if got := checked.Load(); got < 4 {
		t.Errorf("checked %d items, want >= 4", got)
	}
}

func TestScheduler_SkipsItemsNotDue(t *testing.T) {
	lister := &fakeLister{items: map[Class][]Item{
		ClassPort: {portItem(1)},
	}}

	var checked atomic.Int64
	check := func(_ context.Context, _ Item) { checked.Add(1) }
	neverDue := func(Item) bool { return false }

	s := NewScheduler(lister, check, neverDue,
		[]ClassTick{{Class: ClassPort, Tick: 10 * time.Millisecond}}, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if got := checked.Load(); got != 0 {
		t.Errorf("checked %d items, want 0 when nothing is due", got)
	}
	if lister.calls.Load() == 0 {
		t.Error("scheduler never listed items")
	}
}

func TestScheduler_ClassesRunIndependently(t *testing.T) {
	resource := Item{ID: 3, Class: ClassResource, Metric: MetricCPU, Threshold: 90,
		Interval: time.Second, DurationThreshold: 1, MaxAttempts: 1,
		RetryMultiplier: 1, TriggerOn: TriggerStopped}

	lister := &fakeLister{items: map[Class][]Item{
		ClassPort:     {portItem(1)},
		ClassResource: {resource},
	}}

	var ports, resources atomic.Int64
	check := func(_ context.Context, item Item) {
		switch item.Class {
		case ClassPort:
			ports.Add(1)
		case ClassResource:
			resources.Add(1)
		}
	}

	s := NewScheduler(lister, check, alwaysDue, []ClassTick{
		{Class: ClassPort, Tick: 10 * time.Millisecond},
		{Class: ClassResource, Tick: 10 * time.Millisecond},
	}, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	if ports.Load() == 0 || resources.Load() == 0 {
		t.Errorf("ports = %d, resources = %d, want both classes polled",
			ports.Load(), resources.Load())
	}
}

func TestScheduler_SurvivesPanickingCheck(t *testing.T) {
	lister := &fakeLister{items: map[Class][]Item{
		ClassPort: {portItem(1)},
	}}

	var calls atomic.Int64
	check := func(_ context.Context, _ Item) {
		calls.Add(1)
		panic("probe exploded")
	}

	s := NewScheduler(lister, check, alwaysDue,
		[]ClassTick{{Class: ClassPort, Tick: 10 * time.Millisecond}}, zap.NewNop())
	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)
	s.Stop() // must return promptly even while the loop is in panic backoff

	if calls.Load() == 0 {
		t.Error("check was never called")
	}
}

func TestScheduler_StopBeforeStartIsSafe(t *testing.T) {
	s := NewScheduler(&fakeLister{}, func(context.Context, Item) {}, alwaysDue, nil, zap.NewNop())
	s.Start(context.Background())
	s.Stop()
}
