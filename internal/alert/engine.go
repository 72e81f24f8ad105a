package alert

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"winsentry/internal/monitor"
)

// Engine evaluates alert rules against monitor events and dispatches
// email through the configured servers.
//
// Delivery is per-recipient best effort: one bounced address never
// blocks the rest of the list, and every attempt lands in the send log.
type Engine struct {
	store    *Store
	sender   Sender
	logger   *zap.Logger
	hostname string
	nowFn    func() time.Time
}

// NewEngine creates an engine delivering through sender.
func NewEngine(store *Store, sender Sender, logger *zap.Logger) *Engine {
	host, _ := os.Hostname()
	return &Engine{
		store:    store,
		sender:   sender,
		logger:   logger,
		hostname: host,
		nowFn:    time.Now,
	}
}

// HandleStatusChanged evaluates status_change rules for one transition.
// Initial observations (no previous status) never alert.
func (e *Engine) HandleStatusChanged(ctx context.Context, ev monitor.StatusChangedEvent) {
	if ev.Initial {
		return
	}

	rules, err := e.store.ListEnabled(ctx, KindStatusChange)
	if err != nil {
		e.logger.Warn("failed to load status_change rules", zap.Error(err))
		return
	}

	for _, rule := range rules {
		if !rule.matchesItem(ev.Class, ev.ItemID) {
			continue
		}
		if rule.FromStatus != "" && rule.FromStatus != ev.From {
			continue
		}
		if rule.ToStatus != "" && rule.ToStatus != ev.To {
			continue
		}
		e.fire(ctx, rule, map[string]string{
			"item":   ev.ItemName,
			"target": ev.Target,
			"class":  string(ev.Class),
			"from":   string(ev.From),
			"to":     string(ev.To),
			"status": string(ev.To),
		})
	}
}

// HandleStatusChecked evaluates duration and threshold rules for one
// completed poll.
//
// Duration rules fire exactly once per streak, when the consecutive-poll
// count reaches the configured value. Threshold rules fire on every
// breached poll; the absence of a cooldown is deliberate, a sustained
// breach should keep paging until it clears.
func (e *Engine) HandleStatusChecked(ctx context.Context, ev monitor.StatusCheckedEvent) {
	e.checkDuration(ctx, ev)
	if ev.Status == monitor.StatusBreached {
		e.checkThreshold(ctx, ev)
	}
}

func (e *Engine) checkDuration(ctx context.Context, ev monitor.StatusCheckedEvent) {
	rules, err := e.store.ListEnabled(ctx, KindDuration)
	if err != nil {
		e.logger.Warn("failed to load duration rules", zap.Error(err))
		return
	}

	for _, rule := range rules {
		if !rule.matchesItem(ev.Class, ev.ItemID) {
			continue
		}
		if rule.Status != ev.Status || ev.Count != rule.IntervalCount {
			continue
		}
		e.fire(ctx, rule, map[string]string{
			"item":   ev.ItemName,
			"target": ev.Target,
			"class":  string(ev.Class),
			"status": string(ev.Status),
			"count":  strconv.Itoa(ev.Count),
		})
	}
}

func (e *Engine) checkThreshold(ctx context.Context, ev monitor.StatusCheckedEvent) {
	rules, err := e.store.ListEnabled(ctx, KindThreshold)
	if err != nil {
		e.logger.Warn("failed to load threshold rules", zap.Error(err))
		return
	}

	for _, rule := range rules {
		if !rule.matchesItem(ev.Class, ev.ItemID) {
			continue
		}
		e.fire(ctx, rule, map[string]string{
			"item":      ev.ItemName,
			"target":    ev.Target,
			"class":     string(ev.Class),
			"status":    string(ev.Status),
			"value":     strconv.FormatFloat(ev.Value, 'f', 1, 64),
			"threshold": strconv.FormatFloat(ev.Threshold, 'f', 1, 64),
			"count":     strconv.Itoa(ev.Count),
		})
	}
}

// FireRecurring dispatches one recurring rule.
func (e *Engine) FireRecurring(ctx context.Context, rule Rule) {
	e.fire(ctx, rule, map[string]string{
		"schedule": string(rule.Schedule),
	})
}

// fire renders the rule's template and delivers to every recipient.
func (e *Engine) fire(ctx context.Context, rule Rule, tctx map[string]string) {
	now := e.nowFn()
	tctx["host"] = e.hostname
	tctx["rule"] = rule.Name
	tctx["time"] = now.Format(time.RFC1123)

	tpl, err := e.store.GetTemplate(ctx, rule.TemplateID)
	if err != nil {
		e.logger.Error("rule references missing template",
			zap.Int64("rule_id", rule.ID), zap.Error(err))
		return
	}
	srv, err := e.store.GetServer(ctx, rule.ServerID)
	if err != nil {
		e.logger.Error("rule references missing server",
			zap.Int64("rule_id", rule.ID), zap.Error(err))
		return
	}
	recipients, err := e.store.Recipients(ctx, rule.ID)
	if err != nil {
		e.logger.Error("failed to load recipients",
			zap.Int64("rule_id", rule.ID), zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		e.logger.Warn("rule has no recipients", zap.Int64("rule_id", rule.ID))
		return
	}

	subject, body := RenderMessage(*tpl, tctx)

	sent := 0
	for _, to := range recipients {
		rec := SendRecord{
			RuleID:    rule.ID,
			Recipient: to,
			Subject:   subject,
			SentAt:    now,
		}

		err := e.sender.Send(ctx, *srv, Message{To: to, Subject: subject, Body: body})
		if err != nil {
			rec.Error = err.Error()
			sendsTotal.WithLabelValues(string(rule.Kind), "failed").Inc()
			e.logger.Error("alert delivery failed",
				zap.Int64("rule_id", rule.ID),
				zap.String("rule", rule.Name),
				zap.String("recipient", to),
				zap.Error(err),
			)
		} else {
			rec.Succeeded = true
			sent++
			sendsTotal.WithLabelValues(string(rule.Kind), "sent").Inc()
			e.logger.Info("alert sent",
				zap.Int64("rule_id", rule.ID),
				zap.String("rule", rule.Name),
				zap.String("recipient", to),
			)
		}

		if err := e.store.RecordSend(ctx, rec); err != nil {
			e.logger.Warn("failed to record send", zap.Error(err))
		}
	}

	result := fmt.Sprintf("sent %d/%d", sent, len(recipients))
	if err := e.store.MarkRun(ctx, rule.ID, now, result); err != nil {
		e.logger.Warn("failed to mark rule run",
			zap.Int64("rule_id", rule.ID), zap.Error(err))
	}
}
