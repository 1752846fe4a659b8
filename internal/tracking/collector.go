package tracking

import (
	"math"
	"sync"
	"time"

	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/logging"
	"github.com/vthunder/diner/internal/types"
)

// Reporter receives published samples (debounced and periodic reports)
type Reporter func(sample types.BehaviorSample)

// ScrollObserver sees the in-progress sample after every scroll event
type ScrollObserver func(sample types.BehaviorSample)

// CollectorConfig holds the report timing
type CollectorConfig struct {
	DebounceDelay  time.Duration // report after this much scroll inactivity (default 5s)
	ReportInterval time.Duration // periodic report while focused (default 30s)
}

// DefaultCollectorConfig returns the standard timing
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		DebounceDelay:  5 * time.Second,
		ReportInterval: 30 * time.Second,
	}
}

// Collector is the Signal Collector for one browsing context. It turns raw
// scroll positions and focus changes into BehaviorSamples.
type Collector struct {
	id     types.ContextID
	clock  clock.Clock
	cfg    CollectorConfig
	timer  *SessionTimer
	report Reporter

	mu             sync.Mutex
	url            string
	platform       types.PlatformTag
	distance       float64
	lastPosition   float64
	lastScrollTime time.Time
	speed          float64
	tabSwitches    int
	onScroll       ScrollObserver

	// high-water marks of what has already been reported
	reportedDistance float64
	reportedActive   int

	debounce clock.Timer
	periodic clock.Timer
	stopped  bool
}

// NewCollector creates a collector for a focused context showing url
func NewCollector(id types.ContextID, url string, clk clock.Clock, cfg CollectorConfig, report Reporter) *Collector {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 5 * time.Second
	}
	if cfg.ReportInterval <= 0 {
		cfg.ReportInterval = 30 * time.Second
	}
	return &Collector{
		id:             id,
		clock:          clk,
		cfg:            cfg,
		timer:          NewSessionTimer(clk, true),
		report:         report,
		url:            url,
		platform:       types.DetectPlatform(url),
		lastScrollTime: clk.Now(),
	}
}

// ID returns the context this collector belongs to
func (c *Collector) ID() types.ContextID { return c.id }

// SetScrollObserver registers the per-scroll callback (burn check)
func (c *Collector) SetScrollObserver(fn ScrollObserver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onScroll = fn
}

// Start arms the periodic report timer
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped || c.periodic != nil {
		return
	}
	c.schedulePeriodicLocked()
}

// Stop cancels pending timers. Nothing is reported after Stop.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

// Close stops the collector and publishes whatever has not been reported yet
func (c *Collector) Close() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	sample, pending := c.takeSampleLocked()
	c.stopLocked()
	c.mu.Unlock()

	if pending && c.report != nil {
		c.report(sample)
	}
}

// Navigate records a new URL for the context (platform is re-detected)
func (c *Collector) Navigate(url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	c.platform = types.DetectPlatform(url)
}

// OnScroll ingests a new vertical scroll position.
// speed = |Δposition| / Δms * 1000 (px/s)
func (c *Collector) OnScroll(position float64) {
	if math.IsNaN(position) || math.IsInf(position, 0) {
		logging.Debug("tracking", "%s: ignoring non-finite scroll position", c.id)
		return
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}

	now := c.clock.Now()
	elapsedMS := float64(now.Sub(c.lastScrollTime)) / float64(time.Millisecond)
	diff := math.Abs(position - c.lastPosition)

	c.distance += diff
	if elapsedMS > 0 {
		c.speed = diff / elapsedMS * 1000
	} else {
		c.speed = 0
	}
	c.lastPosition = position
	c.lastScrollTime = now

	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = c.clock.AfterFunc(c.cfg.DebounceDelay, c.flush)

	sample := c.snapshotLocked(now)
	observer := c.onScroll
	c.mu.Unlock()

	if observer != nil {
		observer(sample)
	}
}

// OnFocusChange pauses or resumes the session timer
func (c *Collector) OnFocusChange(hasFocus bool) {
	if hasFocus {
		c.timer.Focus()
	} else {
		c.timer.Blur()
	}
}

// SetTabSwitchCount records the coordinator's rapid-switch count for this context
func (c *Collector) SetTabSwitchCount(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tabSwitches = n
}

// ActiveSeconds returns the true active time, including the in-progress interval.
// It has no side effects.
func (c *Collector) ActiveSeconds() int {
	return c.timer.ElapsedSeconds()
}

// IsFocused reports whether the session timer is running
func (c *Collector) IsFocused() bool {
	return c.timer.IsActive()
}

// TimerState exposes the session timer snapshot
func (c *Collector) TimerState() TimerState {
	return c.timer.State()
}

// Snapshot returns the current in-memory sample without delta bookkeeping
func (c *Collector) Snapshot() types.BehaviorSample {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.clock.Now())
}

// Flush publishes a report now and returns it
func (c *Collector) Flush() (types.BehaviorSample, bool) {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return types.BehaviorSample{}, false
	}
	sample, _ := c.takeSampleLocked()
	c.mu.Unlock()

	if c.report != nil {
		c.report(sample)
	}
	return sample, true
}

func (c *Collector) flush() {
	c.Flush()
}

func (c *Collector) periodicTick() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.schedulePeriodicLocked()
	c.mu.Unlock()

	// only focused contexts report on the interval
	if c.timer.IsActive() {
		c.Flush()
	}
}

func (c *Collector) schedulePeriodicLocked() {
	c.periodic = c.clock.AfterFunc(c.cfg.ReportInterval, c.periodicTick)
}

func (c *Collector) stopLocked() {
	c.stopped = true
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	if c.periodic != nil {
		c.periodic.Stop()
		c.periodic = nil
	}
}

// takeSampleLocked builds a sample carrying deltas since the last report and
// advances the high-water marks. pending is true if any delta is non-zero.
func (c *Collector) takeSampleLocked() (types.BehaviorSample, bool) {
	sample := c.snapshotLocked(c.clock.Now())

	sample.ScrollDistanceDelta = c.distance - c.reportedDistance
	sample.ActiveSecondsDelta = sample.ActiveSeconds - c.reportedActive
	if sample.ActiveSecondsDelta < 0 {
		sample.ActiveSecondsDelta = 0
	}
	c.reportedDistance = c.distance
	if sample.ActiveSeconds > c.reportedActive {
		c.reportedActive = sample.ActiveSeconds
	}

	pending := sample.ScrollDistanceDelta > 0 || sample.ActiveSecondsDelta > 0
	return sample, pending
}

func (c *Collector) snapshotLocked(now time.Time) types.BehaviorSample {
	return types.BehaviorSample{
		ContextID:      c.id,
		URL:            c.url,
		ScrollDistance: c.distance,
		ScrollSpeed:    c.speed,
		ActiveSeconds:  c.timer.ElapsedSeconds(),
		TabSwitchCount: c.tabSwitches,
		Platform:       c.platform,
		Timestamp:      now,
	}
}
