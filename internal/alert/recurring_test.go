package alert

import (
	"testing"
	"time"
)

func TestDue_IntervalSchedule(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rule := Rule{Schedule: ScheduleInterval, Every: time.Hour}

	if !Due(rule, now) {
		t.Error("never-run interval rule not due")
	}

	rule.LastRunAt = now.Add(-30 * time.Minute)
	if Due(rule, now) {
		t.Error("rule due 30m after run with 1h period")
	}

	rule.LastRunAt = now.Add(-time.Hour)
	if !Due(rule, now) {
		t.Error("rule not due exactly one period after run")
	}
}

func TestDue_DailySchedule(t *testing.T) {
	rule := Rule{Schedule: ScheduleDaily, At: "09:00"}
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// Before today's occurrence: not due.
	if Due(rule, day.Add(8*time.Hour)) {
		t.Error("daily rule due before its clock time")
	}

	// After the occurrence with no run today: due.
	rule.LastRunAt = day.Add(-15 * time.Hour) // yesterday
	if !Due(rule, day.Add(10*time.Hour)) {
		t.Error("daily rule not due after its clock time")
	}

	// Already ran today: not due again.
	rule.LastRunAt = day.Add(9*time.Hour + time.Minute)
	if Due(rule, day.Add(18*time.Hour)) {
		t.Error("daily rule due twice in one day")
	}

	// Next day it becomes due again.
	if !Due(rule, day.Add(24*time.Hour+10*time.Hour)) {
		t.Error("daily rule not due the following day")
	}
}

func TestDue_BadClockNeverDue(t *testing.T) {
	rule := Rule{Schedule: ScheduleDaily, At: "25:99"}
	if Due(rule, time.Now()) {
		t.Error("rule with invalid clock time reported due")
	}
}

func TestRule_Validate(t *testing.T) {
	base := Rule{Name: "r", TemplateID: 1, ServerID: 1}

	cases := []struct {
		name    string
		mutate  func(*Rule)
		wantErr bool
	}{
		{"status_change ok", func(r *Rule) { r.Kind = KindStatusChange }, false},
		{"duration ok", func(r *Rule) {
			r.Kind = KindDuration
			r.Status = "stopped"
			r.IntervalCount = 3
		}, false},
		{"duration missing status", func(r *Rule) {
			r.Kind = KindDuration
			r.IntervalCount = 3
		}, true},
		{"duration zero count", func(r *Rule) {
			r.Kind = KindDuration
			r.Status = "stopped"
		}, true},
		{"recurring interval ok", func(r *Rule) {
			r.Kind = KindRecurring
			r.Schedule = ScheduleInterval
			r.Every = time.Hour
		}, false},
		{"recurring daily ok", func(r *Rule) {
			r.Kind = KindRecurring
			r.Schedule = ScheduleDaily
			r.At = "06:30"
		}, false},
		{"recurring daily bad clock", func(r *Rule) {
			r.Kind = KindRecurring
			r.Schedule = ScheduleDaily
			r.At = "morning"
		}, true},
		{"unknown kind", func(r *Rule) { r.Kind = "sometimes" }, true},
		{"missing template", func(r *Rule) {
			r.Kind = KindStatusChange
			r.TemplateID = 0
		}, true},
	}

	for _, tc := range cases {
		rule := base
		tc.mutate(&rule)
		err := rule.Validate()
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}
