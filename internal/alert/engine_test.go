package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"winsentry/internal/monitor"
	"winsentry/internal/store"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), "alert", migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db)
}

// fakeSender records deliveries and can fail selected recipients.
type fakeSender struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, _ Server, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[msg.To]; ok {
		return err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.sent...)
}

// seedRule creates a template, server, and rule with one recipient, and
// returns the stored rule.
func seedRule(t *testing.T, s *Store, rule Rule, recipients ...string) Rule {
	t.Helper()
	ctx := context.Background()

	tpl := &Template{Name: "t", Subject: "{item}: {status}", Body: "{target} {status}"}
	if err := s.CreateTemplate(ctx, tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	srv := &Server{Name: "mail", Host: "smtp.local", Port: 587, From: "agent@local"}
	if err := s.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	rule.TemplateID = tpl.ID
	rule.ServerID = srv.ID
	rule.Enabled = true
	if rule.Name == "" {
		rule.Name = "test rule"
	}
	if err := s.CreateRule(ctx, &rule); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	if len(recipients) == 0 {
		recipients = []string{"ops@local"}
	}
	if err := s.SetRecipients(ctx, rule.ID, recipients); err != nil {
		t.Fatalf("SetRecipients: %v", err)
	}
	return rule
}

func testEngine(t *testing.T, s *Store) (*Engine, *fakeSender) {
	t.Helper()
	sender := &fakeSender{failFor: map[string]error{}}
	return NewEngine(s, sender, zap.NewNop()), sender
}

func changedEvent(from, to monitor.Status) monitor.StatusChangedEvent {
	return monitor.StatusChangedEvent{
		Class:    monitor.ClassService,
		ItemID:   1,
		ItemName: "spooler",
		Target:   "service Spooler",
		From:     from,
		To:       to,
		At:       time.Now(),
	}
}

func TestEngine_StatusChangeRuleFires(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{Kind: KindStatusChange, ToStatus: monitor.StatusStopped})

	engine.HandleStatusChanged(context.Background(), changedEvent(monitor.StatusRunning, monitor.StatusStopped))

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(msgs))
	}
	if msgs[0].Subject != "spooler: stopped" {
		t.Errorf("subject = %q", msgs[0].Subject)
	}
}

func TestEngine_StatusChangeFromToFilters(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{
		Kind:       KindStatusChange,
		FromStatus: monitor.StatusRunning,
		ToStatus:   monitor.StatusStopped,
	})

	ctx := context.Background()
	engine.HandleStatusChanged(ctx, changedEvent(monitor.StatusPaused, monitor.StatusStopped)) // from mismatch
	engine.HandleStatusChanged(ctx, changedEvent(monitor.StatusRunning, monitor.StatusPaused)) // to mismatch
	if len(sender.messages()) != 0 {
		t.Fatalf("sent %d messages for non-matching transitions, want 0", len(sender.messages()))
	}

	engine.HandleStatusChanged(ctx, changedEvent(monitor.StatusRunning, monitor.StatusStopped))
	if len(sender.messages()) != 1 {
		t.Errorf("sent %d messages for matching transition, want 1", len(sender.messages()))
	}
}

func TestEngine_InitialObservationNeverAlerts(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{Kind: KindStatusChange})

	ev := changedEvent("", monitor.StatusStopped)
	ev.Initial = true
	engine.HandleStatusChanged(context.Background(), ev)

	if len(sender.messages()) != 0 {
		t.Errorf("sent %d messages for initial observation, want 0", len(sender.messages()))
	}
}

func TestEngine_ItemScopeFilters(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{Kind: KindStatusChange, Class: monitor.ClassPort, ItemID: 7})

	ev := changedEvent(monitor.StatusRunning, monitor.StatusStopped) // service class, item 1
	engine.HandleStatusChanged(context.Background(), ev)

	if len(sender.messages()) != 0 {
		t.Errorf("rule scoped to port/7 fired for service/1")
	}
}

func TestEngine_DurationRuleFiresOncePerStreak(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{Kind: KindDuration, Status: monitor.StatusStopped, IntervalCount: 3})

	ctx := context.Background()
	for count := 1; count <= 6; count++ {
		engine.HandleStatusChecked(ctx, monitor.StatusCheckedEvent{
			Class: monitor.ClassService, ItemID: 1, ItemName: "spooler",
			Target: "service Spooler", Status: monitor.StatusStopped, Count: count,
		})
	}

	if got := len(sender.messages()); got != 1 {
		t.Errorf("sent %d messages over one streak, want exactly 1 at count 3", got)
	}

	// A new streak reaching the count fires again.
	engine.HandleStatusChecked(ctx, monitor.StatusCheckedEvent{
		Class: monitor.ClassService, ItemID: 1, ItemName: "spooler",
		Target: "service Spooler", Status: monitor.StatusStopped, Count: 3,
	})
	if got := len(sender.messages()); got != 2 {
		t.Errorf("sent %d messages after second streak, want 2", got)
	}
}

func TestEngine_ThresholdRuleFiresEveryBreachedPoll(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	seedRule(t, s, Rule{Kind: KindThreshold, Class: monitor.ClassResource})

	ctx := context.Background()
	for count := 1; count <= 4; count++ {
		engine.HandleStatusChecked(ctx, monitor.StatusCheckedEvent{
			Class: monitor.ClassResource, ItemID: 2, ItemName: "cpu",
			Target: "cpu", Status: monitor.StatusBreached, Count: count,
			Value: 97.5, Threshold: 90,
		})
	}
	// Normal polls never fire threshold rules.
	engine.HandleStatusChecked(ctx, monitor.StatusCheckedEvent{
		Class: monitor.ClassResource, ItemID: 2, Status: monitor.StatusNormal,
		Count: 1, Value: 12, Threshold: 90,
	})

	if got := len(sender.messages()); got != 4 {
		t.Errorf("sent %d messages for 4 breached polls, want 4 (no cooldown)", got)
	}
}

func TestEngine_PerRecipientContinueOnFailure(t *testing.T) {
	s := testStore(t)
	sender := &fakeSender{failFor: map[string]error{
		"bad@local": &SendError{Category: ErrSend, Err: errors.New("mailbox full")},
	}}
	engine := NewEngine(s, sender, zap.NewNop())

	rule := seedRule(t, s, Rule{Kind: KindStatusChange},
		"bad@local", "good@local", "second@local")

	engine.HandleStatusChanged(context.Background(), changedEvent(monitor.StatusRunning, monitor.StatusStopped))

	msgs := sender.messages()
	if len(msgs) != 2 {
		t.Fatalf("delivered %d, want 2 despite one failing recipient", len(msgs))
	}

	// All three attempts land in the send log.
	recs, err := s.RecentSends(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentSends: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("send log has %d entries, want 3", len(recs))
	}
	var failed int
	for _, rec := range recs {
		if !rec.Succeeded {
			failed++
			if !strings.Contains(rec.Error, "mailbox full") {
				t.Errorf("failure record error = %q", rec.Error)
			}
		}
	}
	if failed != 1 {
		t.Errorf("send log failures = %d, want 1", failed)
	}

	// The rule records its run summary.
	got, err := s.GetRule(context.Background(), rule.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.LastResult != "sent 2/3" {
		t.Errorf("LastResult = %q, want \"sent 2/3\"", got.LastResult)
	}
	if got.LastRunAt.IsZero() {
		t.Error("LastRunAt not recorded")
	}
}

func TestEngine_DisabledRuleNeverFires(t *testing.T) {
	s := testStore(t)
	engine, sender := testEngine(t, s)
	rule := seedRule(t, s, Rule{Kind: KindStatusChange})
	if err := s.SetEnabled(context.Background(), rule.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}

	engine.HandleStatusChanged(context.Background(), changedEvent(monitor.StatusRunning, monitor.StatusStopped))
	if len(sender.messages()) != 0 {
		t.Error("disabled rule fired")
	}
}
