package monitor

// Decision is the action policy's verdict for one poll.
type Decision struct {
	Fire   bool
	Action ActionSpec
	Reason string
}

// Evaluate decides whether a recovery action should fire for the item
// given its current streak state. The policy is pure: callers apply the
// side effects (submit the script, call Tracker.MarkAction).
//
// The first action fires once the status has persisted for
// DurationThreshold consecutive polls. Retries are spaced
// DurationThreshold*RetryMultiplier polls after the previous action and
// stop after MaxAttempts. A status change resets the streak, so the
// schedule restarts from the first-fire rule.
func Evaluate(item Item, st State) Decision {
	if !item.TriggerOn.Matches(st.Status) {
		return Decision{Reason: "status does not match trigger condition"}
	}

	action := item.ActionFor(st.Status)
	if action.Empty() {
		return Decision{Reason: "no action configured"}
	}

	if st.ActionsTaken == 0 {
		if st.Count >= item.DurationThreshold {
			return Decision{Fire: true, Action: action, Reason: "duration threshold reached"}
		}
		return Decision{Reason: "duration threshold not reached"}
	}

	if st.ActionsTaken >= item.MaxAttempts {
		return Decision{Reason: "max attempts exhausted"}
	}

	if st.Count-st.LastActionAt >= item.DurationThreshold*item.RetryMultiplier {
		return Decision{Fire: true, Action: action, Reason: "retry interval elapsed"}
	}
	return Decision{Reason: "retry interval not elapsed"}
}
