// Package coordinator relays messages between browsing contexts and the
// engine: it runs a Signal Collector per context, feeds samples to the
// aggregate and the burn trigger, and drives the intervention lifecycle.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/burn"
	"github.com/vthunder/diner/internal/challenge"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/messages"
	"github.com/vthunder/diner/internal/metrics"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/tasks"
	"github.com/vthunder/diner/internal/tracking"
	"github.com/vthunder/diner/internal/types"
)

var (
	ErrUnknownContext = errors.New("unknown context")
	ErrContextClosed  = errors.New("context connection closed")
)

// Conn delivers outbound messages to one browsing context
type Conn interface {
	Send(id string, msg messages.Message) error
}

// Options holds timing and thresholds
type Options struct {
	Clock             clock.Clock
	Collector         tracking.CollectorConfig
	Burn              burn.Config // burst rule; caps, threshold and cooldown come from Settings
	Settings          store.Settings
	AckTimeout        time.Duration // unacknowledged alert self-clears after this
	RapidSwitchWindow time.Duration // activations closer than this count as rapid
	RapidSwitchLimit  int           // more rapid switches than this request an alert
}

// DefaultOptions returns the standard timing on the real clock
func DefaultOptions() Options {
	return Options{
		Clock:             clock.Real{},
		Collector:         tracking.DefaultCollectorConfig(),
		Burn:              burn.DefaultConfig(),
		Settings:          store.DefaultSettings(),
		AckTimeout:        30 * time.Second,
		RapidSwitchWindow: 5 * time.Second,
		RapidSwitchLimit:  5,
	}
}

// Deps are the collaborators the coordinator writes to
type Deps struct {
	Aggregate  *store.Aggregate
	Selector   *tasks.Selector
	Challenges *challenge.Evaluator
	Activity   *activity.Log  // optional
	Outbox     *notify.Outbox // optional
}

// entry is one registered context
type entry struct {
	id        types.ContextID
	conn      Conn
	url       string
	collector *tracking.Collector

	// high-water marks for UPDATE_BEHAVIOR_DATA samples without deltas
	lastDistance float64
	lastActive   int
}

// Coordinator is the Intervention Coordinator
type Coordinator struct {
	deps    Deps
	opts    Options
	clock   clock.Clock
	trigger *burn.Trigger
	router  *messages.Router

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.Mutex
	contexts map[types.ContextID]*entry
	active   *intervention
	settings store.Settings
	tabs     tabTracker // activations across all contexts
}

// New creates a coordinator. It fails if any inbound message kind lacks a handler.
func New(deps Deps, opts Options) (*Coordinator, error) {
	if deps.Aggregate == nil || deps.Selector == nil || deps.Challenges == nil {
		return nil, fmt.Errorf("coordinator needs an aggregate, a task selector and a challenge evaluator")
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 30 * time.Second
	}
	if opts.RapidSwitchWindow <= 0 {
		opts.RapidSwitchWindow = 5 * time.Second
	}
	if opts.RapidSwitchLimit <= 0 {
		opts.RapidSwitchLimit = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		deps:     deps,
		opts:     opts,
		clock:    opts.Clock,
		trigger:  burn.NewTrigger(burnConfig(opts.Burn, opts.Settings), opts.Clock),
		baseCtx:  ctx,
		cancel:   cancel,
		contexts: make(map[types.ContextID]*entry),
		settings: opts.Settings,
	}
	c.router = c.routes()
	if err := c.router.Validate(); err != nil {
		cancel()
		return nil, err
	}
	return c, nil
}

func burnConfig(base burn.Config, s store.Settings) burn.Config {
	base.Threshold = s.SensitivityThreshold
	base.Cooldown = s.Cooldown()
	base.ScrollCap = float64(s.ScrollCap)
	base.TimeCap = s.TimeCap
	return base
}

// Trigger exposes the burn gate (read-only use)
func (c *Coordinator) Trigger() *burn.Trigger { return c.trigger }

// ApplySettings re-tunes the trigger and task preference
func (c *Coordinator) ApplySettings(s store.Settings) {
	c.mu.Lock()
	c.settings = s
	c.mu.Unlock()
	c.trigger.Configure(burnConfig(c.opts.Burn, s))
	log.Printf("[coordinator] Settings applied: threshold=%.2f cooldown=%dm timeout=%ds caps=%dpx/%ds",
		s.SensitivityThreshold, s.CooldownMinutes, s.AlertTimeoutSeconds, s.ScrollCap, s.TimeCap)
}

func (c *Coordinator) currentSettings() store.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

func (c *Coordinator) day() string {
	return clock.Day(c.clock.Now())
}

// Register adds an addressable context and starts its collector. A context
// re-registering under the same id replaces the old connection.
func (c *Coordinator) Register(id types.ContextID, url string, conn Conn) {
	e := &entry{id: id, conn: conn, url: url}
	e.collector = tracking.NewCollector(id, url, c.clock, c.opts.Collector, c.onReport)
	e.collector.SetScrollObserver(c.onScrollSample)

	c.mu.Lock()
	old := c.contexts[id]
	c.contexts[id] = e
	c.mu.Unlock()

	if old != nil {
		old.collector.Stop()
	} else {
		metrics.ContextsConnected.Inc()
	}
	e.collector.Start()
	log.Printf("[coordinator] Context %s registered (%s)", id, url)
}

// Unregister removes a context if conn is still the one registered for it.
// Pending deltas are flushed and an alert targeting it is released.
func (c *Coordinator) Unregister(id types.ContextID, conn Conn) {
	c.mu.Lock()
	e, ok := c.contexts[id]
	if !ok || (conn != nil && e.conn != conn) {
		c.mu.Unlock()
		return
	}
	delete(c.contexts, id)
	var alertID string
	if c.active != nil && c.active.target == id {
		alertID = c.active.alert.ID
	}
	c.mu.Unlock()

	metrics.ContextsConnected.Dec()
	e.collector.Close()
	if alertID != "" {
		c.release(alertID, releaseContextGone)
	}
	log.Printf("[coordinator] Context %s unregistered", id)
}

// BlurAll pauses every context's session timer (browser exit)
func (c *Coordinator) BlurAll() {
	for _, e := range c.entries() {
		e.collector.OnFocusChange(false)
	}
	if c.deps.Activity != nil {
		c.deps.Activity.Log(activity.Entry{Type: activity.TypeBrowserExit, Summary: "browser exited, timers paused"})
	}
}

// Close stops every collector and pending timer
func (c *Coordinator) Close() {
	c.mu.Lock()
	entries := make([]*entry, 0, len(c.contexts))
	for _, e := range c.contexts {
		entries = append(entries, e)
	}
	c.contexts = make(map[types.ContextID]*entry)
	in := c.active
	c.active = nil
	c.mu.Unlock()

	for _, e := range entries {
		e.collector.Close()
		metrics.ContextsConnected.Dec()
	}
	if in != nil {
		in.stopTimer()
		c.trigger.Release(in.alert.ID)
	}
	c.cancel()
}

func (c *Coordinator) entries() []*entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*entry, 0, len(c.contexts))
	for _, e := range c.contexts {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (c *Coordinator) lookup(id types.ContextID) (*entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.contexts[id]
	return e, ok
}

// ContextInfo describes one registered context
type ContextInfo struct {
	ID       types.ContextID   `json:"id"`
	URL      string            `json:"url"`
	Platform types.PlatformTag `json:"platformTag"`
	Focused  bool              `json:"focused"`
	Active   int               `json:"activeSeconds"`
}

// Contexts lists registered contexts ordered by id
func (c *Coordinator) Contexts() []ContextInfo {
	var out []ContextInfo
	for _, e := range c.entries() {
		s := e.collector.Snapshot()
		out = append(out, ContextInfo{
			ID:       e.id,
			URL:      s.URL,
			Platform: s.Platform,
			Focused:  e.collector.IsFocused(),
			Active:   s.ActiveSeconds,
		})
	}
	return out
}

// SessionData returns the in-memory session snapshot for a context
func (c *Coordinator) SessionData(id types.ContextID) (messages.SessionData, error) {
	e, ok := c.lookup(id)
	if !ok {
		return messages.SessionData{}, fmt.Errorf("%w: %s", ErrUnknownContext, id)
	}
	return messages.SessionData{
		ContextID:   id,
		Sample:      e.collector.Snapshot(),
		Timer:       e.collector.TimerState(),
		AlertActive: c.trigger.State().IsAlertActive,
	}, nil
}

// Handle decodes a frame from a context, dispatches it and returns the
// encoded reply (nil when the message has none)
func (c *Coordinator) Handle(ctx context.Context, from types.ContextID, data []byte) []byte {
	env, msg, err := messages.Decode(data)
	if err != nil {
		code := messages.CodeBadRequest
		if errors.Is(err, messages.ErrUnknownKind) {
			code = messages.CodeUnknownKind
		}
		log.Printf("[coordinator] Bad frame from %s: %v", from, err)
		return encodeReply(env.ID, from, messages.Error{Code: code, Message: err.Error()})
	}

	reply, err := c.Dispatch(ctx, from, msg)
	if err != nil {
		log.Printf("[coordinator] %s from %s failed: %v", msg.Kind(), from, err)
		reply = messages.Error{Code: messages.CodeInternal, Message: err.Error()}
	}
	if reply == nil {
		return nil
	}
	return encodeReply(env.ID, from, reply)
}

// Dispatch routes an already-decoded message
func (c *Coordinator) Dispatch(ctx context.Context, from types.ContextID, msg messages.Message) (messages.Message, error) {
	return c.router.Dispatch(ctx, from, msg)
}

func encodeReply(id string, to types.ContextID, msg messages.Message) []byte {
	data, err := messages.Encode(id, to, msg)
	if err != nil {
		log.Printf("[coordinator] Failed to encode %s: %v", msg.Kind(), err)
		return nil
	}
	return data
}
