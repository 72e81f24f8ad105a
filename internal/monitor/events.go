package monitor

import "time"

// Event topics published by the monitor module.
const (
	// TopicStatusChanged fires once per status transition.
	TopicStatusChanged = "monitor.status.changed"
	// TopicStatusChecked fires on every completed poll of an item.
	TopicStatusChecked = "monitor.status.checked"
	// TopicActionFired fires when a recovery script is submitted.
	TopicActionFired = "monitor.action.fired"
)

// StatusChangedEvent is the payload for TopicStatusChanged.
type StatusChangedEvent struct {
	Class    Class
	ItemID   int64
	ItemName string
	Target   string
	From     Status
	To       Status
	At       time.Time
	Initial  bool
}

// StatusCheckedEvent is the payload for TopicStatusChecked. Count is the
// number of consecutive polls at the current status; Value and Threshold
// are set for resource items only.
type StatusCheckedEvent struct {
	Class     Class
	ItemID    int64
	ItemName  string
	Target    string
	Status    Status
	Count     int
	Value     float64
	Threshold float64
	At        time.Time
}

// ActionFiredEvent is the payload for TopicActionFired.
type ActionFiredEvent struct {
	Class    Class
	ItemID   int64
	ItemName string
	Target   string
	Status   Status
	JobID    string
	Attempt  int
	At       time.Time
}
