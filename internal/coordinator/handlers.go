package coordinator

import (
	"context"
	"log"
	"time"

	"github.com/vthunder/diner/internal/burn"
	"github.com/vthunder/diner/internal/messages"
	"github.com/vthunder/diner/internal/metrics"
	"github.com/vthunder/diner/internal/types"
)

func (c *Coordinator) routes() *messages.Router {
	r := messages.NewRouter()
	messages.On(r, c.handleBehavior)
	messages.On(r, c.handleScroll)
	messages.On(r, c.handleFocus)
	messages.On(r, c.handleTabActivated)
	messages.On(r, c.handleAck)
	messages.On(r, c.handleTaskDone)
	messages.On(r, c.handleCompleteTask)
	messages.On(r, c.handleSessionData)
	return r
}

// onReport receives debounced and periodic samples from collectors
func (c *Coordinator) onReport(s types.BehaviorSample) {
	c.ingest(c.baseCtx, s)
}

// onScrollSample runs the burn check on every scroll event
func (c *Coordinator) onScrollSample(s types.BehaviorSample) {
	if alert, ok := c.trigger.Evaluate(s); ok {
		c.deliver(c.baseCtx, alert)
	}
}

// ingest records a sample in the daily aggregate, re-checks the challenge
// and runs the burn check
func (c *Coordinator) ingest(ctx context.Context, s types.BehaviorSample) {
	if s.Coerce() {
		metrics.SamplesCoerced.Inc()
	}

	day := c.day()
	if _, err := c.deps.Aggregate.RecordSample(ctx, s, day); err != nil {
		log.Printf("[coordinator] Failed to record sample from %s: %v", s.ContextID, err)
	} else {
		metrics.SamplesRecorded.Inc()
		c.checkChallenge(ctx, day)
	}

	if alert, ok := c.trigger.Evaluate(s); ok {
		c.deliver(ctx, alert)
	}
}

func (c *Coordinator) handleBehavior(ctx context.Context, from types.ContextID, msg messages.UpdateBehaviorData) (messages.Message, error) {
	s := msg.BehaviorSample
	s.ContextID = from
	if s.Coerce() {
		metrics.SamplesCoerced.Inc()
	}

	c.mu.Lock()
	if e, ok := c.contexts[from]; ok {
		e.deriveDeltas(&s)
	}
	c.mu.Unlock()

	c.ingest(ctx, s)
	return nil, nil
}

// deriveDeltas fills in deltas for samples that only carry cumulative
// values. A cumulative value below the mark means the page was reloaded.
func (e *entry) deriveDeltas(s *types.BehaviorSample) {
	if s.ScrollDistance < e.lastDistance {
		e.lastDistance = 0
	}
	if s.ActiveSeconds < e.lastActive {
		e.lastActive = 0
	}
	if s.ScrollDistanceDelta == 0 {
		s.ScrollDistanceDelta = s.ScrollDistance - e.lastDistance
	}
	if s.ActiveSecondsDelta == 0 {
		s.ActiveSecondsDelta = s.ActiveSeconds - e.lastActive
	}
	e.lastDistance = s.ScrollDistance
	e.lastActive = s.ActiveSeconds
}

func (c *Coordinator) handleScroll(_ context.Context, from types.ContextID, msg messages.Scroll) (messages.Message, error) {
	e, ok := c.lookup(from)
	if !ok {
		return unknownContext(from), nil
	}
	e.collector.OnScroll(msg.Position)
	return nil, nil
}

func (c *Coordinator) handleFocus(_ context.Context, from types.ContextID, msg messages.Focus) (messages.Message, error) {
	e, ok := c.lookup(from)
	if !ok {
		return unknownContext(from), nil
	}
	e.collector.OnFocusChange(msg.HasFocus)
	return nil, nil
}

func (c *Coordinator) handleTabActivated(ctx context.Context, from types.ContextID, msg messages.TabActivated) (messages.Message, error) {
	now := c.clock.Now()

	c.mu.Lock()
	e, ok := c.contexts[from]
	if !ok {
		c.mu.Unlock()
		return unknownContext(from), nil
	}
	rapid := c.tabs.activate(now, c.opts.RapidSwitchWindow)
	c.mu.Unlock()

	if msg.URL != "" {
		e.collector.Navigate(msg.URL)
	}
	e.collector.SetTabSwitchCount(rapid)
	if _, err := c.deps.Aggregate.RecordTabSwitch(ctx, c.day()); err != nil {
		log.Printf("[coordinator] Failed to record tab switch: %v", err)
	}

	if rapid > c.opts.RapidSwitchLimit {
		if alert, ok := c.trigger.Request(from, burn.ReasonSeasoningOverload); ok {
			alert.URL = e.collector.Snapshot().URL
			c.deliver(ctx, alert)
		}
	}
	return nil, nil
}

func (c *Coordinator) handleSessionData(_ context.Context, from types.ContextID, _ messages.GetSessionData) (messages.Message, error) {
	data, err := c.SessionData(from)
	if err != nil {
		return unknownContext(from), nil
	}
	return data, nil
}

func unknownContext(id types.ContextID) messages.Message {
	return messages.Error{Code: messages.CodeBadRequest, Message: "unknown context " + string(id)}
}

// tabTracker counts activations that follow each other within a window,
// whichever context was activated
type tabTracker struct {
	last  time.Time
	rapid int
}

func (t *tabTracker) activate(now time.Time, window time.Duration) int {
	if !t.last.IsZero() && now.Sub(t.last) < window {
		t.rapid++
	} else {
		t.rapid = 0
	}
	t.last = now
	return t.rapid
}
