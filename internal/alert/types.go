package alert

import (
	"fmt"
	"time"

	"winsentry/internal/monitor"
)

// RuleKind selects an alert rule's firing semantics.
type RuleKind string

const (
	// KindStatusChange fires on a status transition, optionally filtered
	// by from/to status.
	KindStatusChange RuleKind = "status_change"
	// KindDuration fires once when an item has held a status for a
	// configured number of consecutive polls.
	KindDuration RuleKind = "duration"
	// KindThreshold fires on every poll where a resource item is over
	// its threshold. There is no cooldown: a sustained breach keeps
	// alerting until it clears.
	KindThreshold RuleKind = "threshold"
	// KindRecurring fires on a wall-clock schedule regardless of status.
	KindRecurring RuleKind = "recurring"
)

// Schedule selects how a recurring rule computes its next run.
type Schedule string

const (
	ScheduleInterval Schedule = "interval" // every Every duration
	ScheduleDaily    Schedule = "daily"    // once per day at At (HH:MM)
)

// Rule is one configured alert. Class and ItemID scope the rule to a
// subset of monitored items; zero values match everything.
type Rule struct {
	ID      int64
	Name    string
	Kind    RuleKind
	Enabled bool

	Class  monitor.Class
	ItemID int64

	// status_change filters; empty matches any status.
	FromStatus monitor.Status
	ToStatus   monitor.Status

	// duration rule: Status held for IntervalCount consecutive polls.
	Status        monitor.Status
	IntervalCount int

	// recurring rule schedule.
	Schedule Schedule
	Every    time.Duration
	At       string // "HH:MM", daily schedule

	TemplateID int64
	ServerID   int64

	LastRunAt  time.Time
	LastResult string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks kind-specific required fields.
func (r Rule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("rule requires a name")
	}
	if r.TemplateID == 0 {
		return fmt.Errorf("rule requires a template")
	}
	if r.ServerID == 0 {
		return fmt.Errorf("rule requires an email server")
	}

	switch r.Kind {
	case KindStatusChange:
	case KindDuration:
		if r.Status == "" {
			return fmt.Errorf("duration rule requires a status")
		}
		if r.IntervalCount < 1 {
			return fmt.Errorf("duration rule requires interval count >= 1")
		}
	case KindThreshold:
	case KindRecurring:
		switch r.Schedule {
		case ScheduleInterval:
			if r.Every <= 0 {
				return fmt.Errorf("interval schedule requires a positive period")
			}
		case ScheduleDaily:
			if _, err := parseClock(r.At); err != nil {
				return fmt.Errorf("daily schedule: %w", err)
			}
		default:
			return fmt.Errorf("unknown schedule %q", r.Schedule)
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// matchesItem reports whether the rule's class/item scope covers the
// given event source.
func (r Rule) matchesItem(class monitor.Class, itemID int64) bool {
	if r.Class != "" && r.Class != class {
		return false
	}
	if r.ItemID != 0 && r.ItemID != itemID {
		return false
	}
	return true
}

// Template is a reusable message layout. Subject and Body may contain
// {placeholder} tokens resolved at send time.
type Template struct {
	ID        int64
	Name      string
	Subject   string
	Body      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Server is a configured SMTP endpoint. UseSSL selects implicit TLS
// (port 465 style); otherwise STARTTLS is attempted when the server
// offers it.
type Server struct {
	ID       int64
	Name     string
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseSSL   bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the server's connectivity fields.
func (s Server) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("server requires a host")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server port %d out of range", s.Port)
	}
	if s.From == "" {
		return fmt.Errorf("server requires a from address")
	}
	return nil
}

// Addr returns the host:port dial target.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SendRecord is one entry in the send log: one rule firing delivered to
// one recipient.
type SendRecord struct {
	ID        int64
	RuleID    int64
	Recipient string
	Subject   string
	Succeeded bool
	Error     string
	SentAt    time.Time
}

// parseClock parses "HH:MM" into hour and minute.
func parseClock(s string) (time.Time, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return t, nil
}
