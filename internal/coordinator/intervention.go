package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/burn"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/messages"
	"github.com/vthunder/diner/internal/metrics"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/types"
)

// release causes
const (
	releaseAckTimeout   = "ack_timeout"
	releaseTimeout      = messages.DismissTimeout
	releaseCompleted    = messages.DismissCompleted
	releaseContextGone  = "context_gone"
	releaseNoTargetNote = "no reachable context"
)

// intervention is the alert currently shown to a context
type intervention struct {
	alert  burn.Alert
	target types.ContextID
	task   tasks.Task
	gate   tasks.Gate
	acked  bool
	timer  clock.Timer
}

func (in *intervention) stopTimer() {
	if in.timer != nil {
		in.timer.Stop()
		in.timer = nil
	}
}

// Intervention describes the active intervention for status endpoints
type Intervention struct {
	Alert  burn.Alert      `json:"alert"`
	Target types.ContextID `json:"target"`
	TaskID string          `json:"taskId"`
	Acked  bool            `json:"acked"`
}

// Active returns the intervention being shown, if any
func (c *Coordinator) Active() (Intervention, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return Intervention{}, false
	}
	return Intervention{
		Alert:  c.active.alert,
		Target: c.active.target,
		TaskID: c.active.task.ID,
		Acked:  c.active.acked,
	}, true
}

// resolveTarget picks the context to show an alert in: the originating
// context, else a registered context showing the same URL
func (c *Coordinator) resolveTarget(origin types.ContextID, url string) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.contexts[origin]; ok {
		return e, true
	}
	if url == "" {
		return nil, false
	}
	var best *entry
	for _, e := range c.contexts {
		if e.collector.Snapshot().URL != url {
			continue
		}
		if best == nil || e.id < best.id {
			best = e
		}
	}
	return best, best != nil
}

// deliver hands a granted alert to a context. An alert that cannot be shown
// is aborted so the cooldown is not consumed.
func (c *Coordinator) deliver(ctx context.Context, alert *burn.Alert) {
	target, ok := c.resolveTarget(alert.ContextID, alert.URL)
	if !ok {
		c.trigger.Abort(alert.ID)
		metrics.AlertsDropped.Inc()
		log.Printf("[coordinator] Alert %s for %s dropped: %s", alert.ID, alert.ContextID, releaseNoTargetNote)
		if c.deps.Activity != nil {
			c.deps.Activity.LogDropped(alert.ID, string(alert.ContextID), string(alert.Reason))
		}
		return
	}

	settings := c.currentSettings()
	in := &intervention{
		alert:  *alert,
		target: target.id,
		task:   c.deps.Selector.Pick(settings.TaskPreference),
	}
	id := alert.ID
	c.mu.Lock()
	c.active = in
	in.timer = c.clock.AfterFunc(c.opts.AckTimeout, func() {
		c.release(id, releaseAckTimeout)
	})
	c.mu.Unlock()

	err := target.conn.Send("", messages.TriggerIntervention{
		AlertID:        alert.ID,
		Reason:         alert.Reason,
		Message:        alert.Message,
		Cause:          alert.Cause,
		Score:          alert.Score,
		TaskID:         in.task.ID,
		TimeoutSeconds: settings.AlertTimeoutSeconds,
	})
	if err != nil {
		c.mu.Lock()
		if c.active == in {
			c.active = nil
			in.stopTimer()
		}
		c.mu.Unlock()
		c.trigger.Abort(alert.ID)
		metrics.AlertsDropped.Inc()
		log.Printf("[coordinator] Alert %s not delivered to %s: %v", alert.ID, target.id, err)
		if c.deps.Activity != nil {
			c.deps.Activity.LogDropped(alert.ID, string(target.id), string(alert.Reason))
		}
		return
	}

	metrics.AlertsTriggered.WithLabelValues(string(alert.Reason), string(alert.Cause)).Inc()
	if _, err := c.deps.Aggregate.RecordBurnAlert(ctx); err != nil {
		log.Printf("[coordinator] Failed to count burn alert: %v", err)
	}
	if c.deps.Activity != nil {
		c.deps.Activity.LogAlert(alert.ID, string(target.id), string(alert.Reason), string(alert.Cause), alert.Score)
	}
	log.Printf("[coordinator] Alert %s (%s/%s, score %.2f) sent to %s with task %s",
		alert.ID, alert.Reason, alert.Cause, alert.Score, target.id, in.task.ID)
}

// release clears the active intervention and the trigger gate. Timeouts tell
// the context to remove its overlay.
func (c *Coordinator) release(alertID, cause string) bool {
	c.mu.Lock()
	in := c.active
	if in == nil || in.alert.ID != alertID {
		c.mu.Unlock()
		return false
	}
	c.active = nil
	in.stopTimer()
	target, reachable := c.contexts[in.target]
	c.mu.Unlock()

	c.trigger.Release(alertID)
	metrics.AlertsReleased.WithLabelValues(cause).Inc()

	if reachable && cause != releaseCompleted {
		msg := messages.DismissIntervention{AlertID: alertID, Reason: messages.DismissTimeout}
		if err := target.conn.Send("", msg); err != nil {
			log.Printf("[coordinator] Dismiss for %s not delivered: %v", alertID, err)
		}
	}
	if cause != releaseCompleted && c.deps.Activity != nil {
		c.deps.Activity.LogDismissed(alertID, string(in.target), cause)
	}
	log.Printf("[coordinator] Alert %s released (%s)", alertID, cause)
	return true
}

// current returns the active intervention when it matches alertID and is
// shown in from. An empty alertID matches whatever is shown in from.
func (c *Coordinator) current(from types.ContextID, alertID string) (*intervention, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := c.active
	if in == nil || in.target != from {
		return nil, false
	}
	if alertID != "" && in.alert.ID != alertID {
		return nil, false
	}
	return in, true
}

func noActiveAlert(alertID string) messages.Message {
	return messages.Error{Code: messages.CodeNoActiveAlert, Message: fmt.Sprintf("no active intervention %q", alertID)}
}

func (c *Coordinator) handleAck(_ context.Context, from types.ContextID, msg messages.AckIntervention) (messages.Message, error) {
	c.mu.Lock()
	in := c.active
	if in == nil || in.target != from || (msg.AlertID != "" && in.alert.ID != msg.AlertID) {
		c.mu.Unlock()
		return noActiveAlert(msg.AlertID), nil
	}
	if !in.acked {
		in.acked = true
		in.stopTimer()
		id := in.alert.ID
		in.timer = c.clock.AfterFunc(c.settings.AlertTimeout(), func() {
			c.release(id, releaseTimeout)
		})
	}
	c.mu.Unlock()
	return nil, nil
}

func (c *Coordinator) handleTaskDone(_ context.Context, from types.ContextID, msg messages.TaskDone) (messages.Message, error) {
	in, ok := c.current(from, msg.AlertID)
	if !ok {
		return noActiveAlert(msg.AlertID), nil
	}
	in.gate.MarkTaskDone()
	return nil, nil
}

func (c *Coordinator) handleCompleteTask(ctx context.Context, from types.ContextID, msg messages.CompleteTask) (messages.Message, error) {
	in, ok := c.current(from, msg.AlertID)
	if !ok {
		return noActiveAlert(msg.AlertID), nil
	}

	kind := msg.TaskKind
	if kind == "" {
		kind = in.task.ID
	}
	if kind != tasks.TakeBreak {
		in.gate.SetReflection(msg.ReflectionText)
		if err := in.gate.Check(); err != nil {
			code := messages.CodeTaskIncomplete
			if errors.Is(err, tasks.ErrReflectionTooShort) {
				code = messages.CodeReflectionShort
			}
			return messages.Error{Code: code, Message: err.Error()}, nil
		}
	}

	// Lose the race to a timeout and the completion is not counted
	if !c.release(in.alert.ID, releaseCompleted) {
		return noActiveAlert(msg.AlertID), nil
	}

	day := c.day()
	progress, err := c.deps.Aggregate.CompleteSession(ctx, kind, msg.ReflectionText, day)
	if err != nil {
		return nil, fmt.Errorf("complete session: %w", err)
	}
	metrics.TasksCompleted.WithLabelValues(kind).Inc()
	if c.deps.Activity != nil {
		c.deps.Activity.LogTaskCompleted(in.alert.ID, string(from), kind, msg.ReflectionText, progress.SessionsCompleted)
	}

	c.notifyUpgrade(progress.SessionsCompleted)

	reply := messages.TaskAccepted{
		AlertID:           in.alert.ID,
		SessionsCompleted: progress.SessionsCompleted,
		KitchenLevel:      progress.KitchenLevel,
	}
	if kind == tasks.TakeBreak {
		reply.BreakActivity = c.deps.Selector.PickBreak()
	}
	reply.ChallengeCompleted = c.checkChallenge(ctx, day)

	log.Printf("[coordinator] Alert %s completed by %s (%s), sessions=%d level=%d",
		in.alert.ID, from, kind, progress.SessionsCompleted, progress.KitchenLevel)
	return reply, nil
}

// notifyUpgrade announces an upgrade that became unlockable with this session
func (c *Coordinator) notifyUpgrade(sessions int) {
	if c.deps.Outbox == nil {
		return
	}
	for _, u := range store.Upgrades {
		if u.UnlockAt == 0 || u.UnlockAt != sessions {
			continue
		}
		title := fmt.Sprintf("%s %s available", u.Icon, u.Name)
		if _, err := c.deps.Outbox.Add(notify.KindUpgradeAvailable, title, fmt.Sprintf("%d mindful sessions completed", sessions)); err != nil {
			log.Printf("[coordinator] Failed to queue upgrade notification: %v", err)
		}
	}
}

// checkChallenge assigns today's challenge if needed and evaluates it.
// Returns true when this call completed it.
func (c *Coordinator) checkChallenge(ctx context.Context, day string) bool {
	rec, assigned, err := c.deps.Challenges.Today(ctx, day)
	if err != nil {
		log.Printf("[coordinator] Challenge lookup failed: %v", err)
		return false
	}
	if assigned && c.deps.Activity != nil {
		c.deps.Activity.LogChallenge(activity.TypeChallengeAssigned, rec.ID, day)
	}

	rec, completed, err := c.deps.Challenges.Check(ctx, day)
	if err != nil {
		log.Printf("[coordinator] Challenge check failed: %v", err)
		return false
	}
	if !completed {
		return false
	}

	metrics.ChallengesCompleted.Inc()
	if c.deps.Activity != nil {
		c.deps.Activity.LogChallenge(activity.TypeChallengeCompleted, rec.ID, day)
	}
	if c.deps.Outbox != nil {
		if _, err := c.deps.Outbox.Add(notify.KindChallengeCompleted, "Challenge complete", rec.Text); err != nil {
			log.Printf("[coordinator] Failed to queue challenge notification: %v", err)
		}
	}
	log.Printf("[coordinator] Challenge %s completed for %s", rec.ID, day)
	return true
}
