package monitor

import (
	"reflect"
	"testing"
	"time"
)

func policyItem() Item {
	return Item{
		ID:                1,
		Class:             ClassService,
		ServiceName:       "Spooler",
		Interval:          time.Minute,
		DurationThreshold: 3,
		MaxAttempts:       2,
		RetryMultiplier:   2,
		TriggerOn:         TriggerStopped,
		OnStopped:         ActionSpec{Type: ScriptInline, Content: "Start-Service Spooler"},
	}
}

func TestEvaluate_NoFireBeforeDurationThreshold(t *testing.T) {
	item := policyItem()

	for count := 1; count < item.DurationThreshold; count++ {
		dec := Evaluate(item, State{Status: StatusStopped, Count: count})
		if dec.Fire {
			t.Errorf("count %d: Fire = true, want false before threshold", count)
		}
	}
}

func TestEvaluate_FiresAtDurationThreshold(t *testing.T) {
	item := policyItem()

	dec := Evaluate(item, State{Status: StatusStopped, Count: 3})
	if !dec.Fire {
		t.Fatalf("Fire = false at threshold, want true (%s)", dec.Reason)
	}
	if dec.Action.Content != item.OnStopped.Content {
		t.Errorf("Action = %+v, want the stopped action", dec.Action)
	}
}

// TestEvaluate_RetrySchedule walks a full stopped streak and verifies the
// fire points: first at the duration threshold (3), the retry at
// threshold*multiplier polls later (9), then nothing once attempts are
// exhausted.
func TestEvaluate_RetrySchedule(t *testing.T) {
	item := policyItem()
	st := State{Status: StatusStopped}

	var fired []int
	for count := 1; count <= 30; count++ {
		st.Count = count
		dec := Evaluate(item, st)
		if dec.Fire {
			fired = append(fired, count)
			st.ActionsTaken++
			st.LastActionAt = count
		}
	}

	want := []int{3, 9}
	if !reflect.DeepEqual(fired, want) {
		t.Errorf("fired at %v, want %v", fired, want)
	}
}

func TestEvaluate_TriggerConditionGates(t *testing.T) {
	item := policyItem()
	item.OnRunning = ActionSpec{Type: ScriptInline, Content: "Stop-Service Spooler"}

	// Running status with a stopped-only trigger never fires.
	dec := Evaluate(item, State{Status: StatusRunning, Count: 100})
	if dec.Fire {
		t.Error("Fire = true for running status with trigger_on=stopped")
	}

	// not_found counts as stopped for triggering.
	dec = Evaluate(item, State{Status: StatusNotFound, Count: 3})
	if !dec.Fire {
		t.Errorf("Fire = false for not_found, want true (%s)", dec.Reason)
	}

	item.TriggerOn = TriggerBoth
	dec = Evaluate(item, State{Status: StatusRunning, Count: 3})
	if !dec.Fire {
		t.Errorf("Fire = false for running with trigger_on=both, want true (%s)", dec.Reason)
	}
	if dec.Action.Content != item.OnRunning.Content {
		t.Errorf("Action = %+v, want the running action", dec.Action)
	}
}

func TestEvaluate_NoActionConfigured(t *testing.T) {
	item := policyItem()
	item.OnStopped = ActionSpec{}

	dec := Evaluate(item, State{Status: StatusStopped, Count: 10})
	if dec.Fire {
		t.Error("Fire = true with no action configured, want false")
	}
}

func TestEvaluate_MaxAttemptsExhausted(t *testing.T) {
	item := policyItem()

	dec := Evaluate(item, State{
		Status:       StatusStopped,
		Count:        1000,
		ActionsTaken: item.MaxAttempts,
		LastActionAt: 9,
	})
	if dec.Fire {
		t.Error("Fire = true past max attempts, want false")
	}
}
