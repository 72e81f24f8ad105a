package monitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HistoryStore is the slice of the monitor store the tracker needs.
type HistoryStore interface {
	LatestStatusChange(ctx context.Context, class Class, itemID int64) (*StatusChange, error)
	RecordStatusChange(ctx context.Context, class Class, itemID int64, status Status, detail map[string]string, at time.Time) error
}

// State is the tracker's in-memory record for one item.
//
// Count is the number of consecutive polls the item has reported its
// current status. ActionsTaken and LastActionAt belong to the action
// policy: LastActionAt stores the Count value at which the last recovery
// action fired, so retry spacing is measured in polls, not wall time.
type State struct {
	Status       Status
	Count        int
	ActionsTaken int
	LastActionAt int
	LastCheck    time.Time
}

// Transition describes a status change between two polls. Initial marks
// the very first observation of an item, where From is unknown.
type Transition struct {
	From    Status
	To      Status
	At      time.Time
	Initial bool
}

// Observation is the outcome of feeding one snapshot to the tracker.
type Observation struct {
	State      State
	Transition *Transition // nil when the status did not change
	Backfilled bool        // Count was seeded from persisted history after a restart
}

// Tracker maintains per-item streak state across polls and persists
// status transitions.
//
// On the first observation of an item after a restart, the tracker
// consults the persisted history: if the last recorded status matches the
// observed one, the streak count is backfilled as elapsed/interval
// (floored, minimum 1) so duration-based alerts and retry spacing survive
// agent restarts instead of starting over.
type Tracker struct {
	mu      sync.Mutex
	states  map[Key]*State
	history HistoryStore
	logger  *zap.Logger
	nowFn   func() time.Time
}

// NewTracker creates a tracker persisting transitions through history.
func NewTracker(history HistoryStore, logger *zap.Logger) *Tracker {
	return &Tracker{
		states:  make(map[Key]*State),
		history: history,
		logger:  logger,
		nowFn:   time.Now,
	}
}

// Observe folds one snapshot into the item's state and returns the
// resulting streak plus any transition. Persisting the transition is
// best-effort: a write failure is logged and the in-memory state still
// advances, so one bad write cannot stall monitoring.
func (t *Tracker) Observe(ctx context.Context, item Item, snap Snapshot) Observation {
	now := t.nowFn()
	key := item.Key()

	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.states[key]
	if !ok {
		return t.observeCold(ctx, item, snap, now)
	}

	st.LastCheck = now
	if snap.Status == st.Status {
		st.Count++
		return Observation{State: *st}
	}

	tr := &Transition{From: st.Status, To: snap.Status, At: now}
	st.Status = snap.Status
	st.Count = 1
	st.ActionsTaken = 0
	st.LastActionAt = 0

	t.record(ctx, item, snap, now)
	return Observation{State: *st, Transition: tr}
}

// observeCold handles the first observation of an item since startup.
// Caller holds t.mu.
func (t *Tracker) observeCold(ctx context.Context, item Item, snap Snapshot, now time.Time) Observation {
	st := &State{Status: snap.Status, Count: 1, LastCheck: now}
	t.states[item.Key()] = st

	last, err := t.history.LatestStatusChange(ctx, item.Class, item.ID)
	if err != nil {
		t.logger.Warn("failed to load persisted status, starting fresh",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
			zap.Error(err),
		)
		last = nil
	}

	if last == nil {
		// Never seen before: record the initial status.
		t.record(ctx, item, snap, now)
		return Observation{
			State:      *st,
			Transition: &Transition{To: snap.Status, At: now, Initial: true},
		}
	}

	if last.Status == snap.Status {
		// Same status as before the restart: backfill the streak from
		// elapsed time so duration alerts and retry spacing continue.
		if item.Interval > 0 {
			elapsed := now.Sub(last.ChangedAt)
			if n := int(elapsed / item.Interval); n > 1 {
				st.Count = n
			}
		}
		return Observation{State: *st, Backfilled: st.Count > 1}
	}

	tr := &Transition{From: last.Status, To: snap.Status, At: now}
	t.record(ctx, item, snap, now)
	return Observation{State: *st, Transition: tr}
}

// MarkAction records that a recovery action fired at the item's current
// streak position.
func (t *Tracker) MarkAction(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.states[key]; ok {
		st.ActionsTaken++
		st.LastActionAt = st.Count
	}
}

// Lookup returns a copy of the item's current state.
func (t *Tracker) Lookup(key Key) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[key]
	if !ok {
		return State{}, false
	}
	return *st, true
}

// Due reports whether the item's own interval has elapsed since its last
// check. Items never observed are always due.
func (t *Tracker) Due(item Item) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[item.Key()]
	if !ok {
		return true
	}
	return t.nowFn().Sub(st.LastCheck) >= item.Interval
}

// Forget drops the in-memory state for a removed item.
func (t *Tracker) Forget(key Key) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, key)
}

func (t *Tracker) record(ctx context.Context, item Item, snap Snapshot, at time.Time) {
	if err := t.history.RecordStatusChange(ctx, item.Class, item.ID, snap.Status, snap.Detail, at); err != nil {
		t.logger.Error("failed to persist status change",
			zap.String("class", string(item.Class)),
			zap.Int64("item_id", item.ID),
			zap.String("status", string(snap.Status)),
			zap.Error(err),
		)
	}
}
