package monitor

import (
	"fmt"
	"time"
)

// Class identifies a monitored-item category. Each class runs its own
// polling loop.
type Class string

const (
	ClassPort     Class = "port"
	ClassProcess  Class = "process"
	ClassService  Class = "service"
	ClassResource Class = "resource"
)

// Classes lists all item classes in scheduling order.
var Classes = []Class{ClassPort, ClassProcess, ClassService, ClassResource}

// Status is an observed item state. "not found" and "error" are normal
// status values, never probe failures.
type Status string

const (
	StatusRunning      Status = "running"
	StatusStopped      Status = "stopped"
	StatusStartPending Status = "start_pending"
	StatusStopPending  Status = "stop_pending"
	StatusPaused       Status = "paused"
	StatusNotFound     Status = "not_found"
	StatusError        Status = "error"

	// Resource items report breached/normal instead of running/stopped.
	StatusBreached Status = "breached"
	StatusNormal   Status = "normal"
)

// TriggerCondition selects which observed status authorizes firing the
// configured recovery action.
type TriggerCondition string

const (
	TriggerStopped TriggerCondition = "stopped"
	TriggerRunning TriggerCondition = "running"
	TriggerBoth    TriggerCondition = "both"
)

// Matches reports whether the condition authorizes an action for status.
func (t TriggerCondition) Matches(status Status) bool {
	switch t {
	case TriggerBoth:
		return true
	case TriggerStopped:
		return status == StatusStopped || status == StatusNotFound
	case TriggerRunning:
		return status == StatusRunning
	}
	return false
}

// ScriptType selects how an ActionSpec's payload is interpreted.
type ScriptType string

const (
	ScriptInline ScriptType = "inline"
	ScriptFile   ScriptType = "file"
)

// ActionSpec defines the recovery script bound to one triggering status.
// An empty spec (no content and no path) means no action is configured.
type ActionSpec struct {
	Type    ScriptType `json:"type"`
	Content string     `json:"content,omitempty"`
	Path    string     `json:"path,omitempty"`
}

// Empty reports whether no script is configured.
func (a ActionSpec) Empty() bool {
	return a.Content == "" && a.Path == ""
}

// Metric identifies a system resource measurement for resource items.
type Metric string

const (
	MetricCPU  Metric = "cpu"
	MetricRAM  Metric = "ram"
	MetricDisk Metric = "disk"
)

// Item is a single monitored target. Identity columns are class-specific:
// ports use Port, processes PID or ProcessName, services ServiceName,
// resources Metric (+ Drive for disk) with Threshold.
//
// The monitoring core reads items each cycle and never mutates them;
// configuration changes go through the store.
type Item struct {
	ID    int64  `json:"id"`
	Class Class  `json:"class"`
	Name  string `json:"name"`

	Port        int    `json:"port,omitempty"`
	PID         int32  `json:"pid,omitempty"`
	ProcessName string `json:"process_name,omitempty"`
	ServiceName string `json:"service_name,omitempty"`

	Metric    Metric  `json:"metric,omitempty"`
	Drive     string  `json:"drive,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`

	Interval          time.Duration    `json:"interval"`
	Enabled           bool             `json:"enabled"`
	DurationThreshold int              `json:"duration_threshold"`
	MaxAttempts       int              `json:"max_attempts"`
	RetryMultiplier   int              `json:"retry_multiplier"`
	TriggerOn         TriggerCondition `json:"trigger_on"`

	OnStopped ActionSpec `json:"on_stopped"`
	OnRunning ActionSpec `json:"on_running"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Key uniquely identifies an item across classes.
type Key struct {
	Class Class
	ID    int64
}

// Key returns the item's tracker key.
func (i Item) Key() Key {
	return Key{Class: i.Class, ID: i.ID}
}

// Target returns a short human-readable identity for logs.
func (i Item) Target() string {
	switch i.Class {
	case ClassPort:
		return fmt.Sprintf("port %d", i.Port)
	case ClassProcess:
		if i.PID != 0 {
			return fmt.Sprintf("pid %d", i.PID)
		}
		return "process " + i.ProcessName
	case ClassService:
		return "service " + i.ServiceName
	case ClassResource:
		if i.Metric == MetricDisk {
			return fmt.Sprintf("%s %s", i.Metric, i.Drive)
		}
		return string(i.Metric)
	}
	return "unknown"
}

// ActionFor returns the action spec bound to the given status: OnRunning
// for running, OnStopped for everything else (stopped, not_found, ...).
func (i Item) ActionFor(status Status) ActionSpec {
	if status == StatusRunning {
		return i.OnRunning
	}
	return i.OnStopped
}

// Validate checks that the item's identity and policy fields are usable.
// Configuration errors are reported to the caller here and never reach
// the scheduler in a half-applied state.
func (i Item) Validate() error {
	switch i.Class {
	case ClassPort:
		if i.Port < 1 || i.Port > 65535 {
			return fmt.Errorf("port %d out of range", i.Port)
		}
	case ClassProcess:
		if i.PID == 0 && i.ProcessName == "" {
			return fmt.Errorf("process item requires a pid or a name")
		}
	case ClassService:
		if i.ServiceName == "" {
			return fmt.Errorf("service item requires a service name")
		}
	case ClassResource:
		switch i.Metric {
		case MetricCPU, MetricRAM:
		case MetricDisk:
			if i.Drive == "" {
				return fmt.Errorf("disk resource item requires a drive letter")
			}
		default:
			return fmt.Errorf("unknown resource metric %q", i.Metric)
		}
		if i.Threshold <= 0 {
			return fmt.Errorf("resource item requires a positive threshold")
		}
	default:
		return fmt.Errorf("unknown item class %q", i.Class)
	}

	if i.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if i.DurationThreshold < 1 {
		return fmt.Errorf("duration threshold must be >= 1")
	}
	if i.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1")
	}
	if i.RetryMultiplier < 1 {
		return fmt.Errorf("retry multiplier must be >= 1")
	}
	switch i.TriggerOn {
	case TriggerStopped, TriggerRunning, TriggerBoth:
	default:
		return fmt.Errorf("unknown trigger condition %q", i.TriggerOn)
	}
	return nil
}

// Snapshot is the result of probing one item once. Err records a probe-level
// fault (timeout, access denied); Status is then StatusError and the
// scheduler keeps going.
type Snapshot struct {
	Status Status
	Detail map[string]string
	Value  float64 // resource items: measured utilization percent
	Err    error
}
