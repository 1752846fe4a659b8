package types

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// ContextID identifies one browsing context (tab)
type ContextID string

// PlatformTag classifies the site a context is showing
type PlatformTag string

const (
	PlatformGeneral   PlatformTag = "general"
	PlatformVideo     PlatformTag = "video_content"
	PlatformSocial    PlatformTag = "social_media"
	PlatformForum     PlatformTag = "forum"
	PlatformShortForm PlatformTag = "short_form"
)

var platformHosts = map[string]PlatformTag{
	"youtube.com":   PlatformVideo,
	"instagram.com": PlatformSocial,
	"twitter.com":   PlatformSocial,
	"x.com":         PlatformSocial,
	"reddit.com":    PlatformForum,
	"tiktok.com":    PlatformShortForm,
	"facebook.com":  PlatformSocial,
}

// DetectPlatform maps a URL or bare hostname to its platform tag.
func DetectPlatform(raw string) PlatformTag {
	if host := KnownHost(raw); host != "" {
		return platformHosts[host]
	}
	return PlatformGeneral
}

// KnownHost returns the tracked site a URL or bare hostname belongs to
// ("m.youtube.com" gives "youtube.com"), or "" for untracked sites.
func KnownHost(raw string) string {
	host := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		host = u.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	for {
		if _, ok := platformHosts[host]; ok {
			return host
		}
		i := strings.IndexByte(host, '.')
		if i < 0 || !strings.Contains(host[i+1:], ".") {
			return ""
		}
		host = host[i+1:]
	}
}

// ParsePlatform converts a wire value into a known tag (unknown → general)
func ParsePlatform(s string) PlatformTag {
	switch tag := PlatformTag(s); tag {
	case PlatformVideo, PlatformSocial, PlatformForum, PlatformShortForm:
		return tag
	default:
		return PlatformGeneral
	}
}

// BehaviorSample is one report from a Signal Collector.
// ScrollDistance and ActiveSeconds are cumulative for the context; the Delta
// fields cover only the interval since the previous report.
type BehaviorSample struct {
	ContextID           ContextID   `json:"contextId"`
	URL                 string      `json:"url,omitempty"`
	ScrollDistance      float64     `json:"scrollDistance"`
	ScrollDistanceDelta float64     `json:"scrollDistanceDelta"`
	ScrollSpeed         float64     `json:"scrollSpeed"` // px/s
	ActiveSeconds       int         `json:"activeSeconds"`
	ActiveSecondsDelta  int         `json:"activeSecondsDelta"`
	TabSwitchCount      int         `json:"tabSwitchCount"`
	Platform            PlatformTag `json:"platformTag"`
	Timestamp           time.Time   `json:"timestamp"`
}

// Coerce replaces missing, negative or non-finite fields with zero/defaults.
// Returns true if anything had to be fixed.
func (s *BehaviorSample) Coerce() bool {
	fixed := false
	fix := func(v *float64) {
		if math.IsNaN(*v) || math.IsInf(*v, 0) || *v < 0 {
			*v = 0
			fixed = true
		}
	}
	fixInt := func(v *int) {
		if *v < 0 {
			*v = 0
			fixed = true
		}
	}

	fix(&s.ScrollDistance)
	fix(&s.ScrollDistanceDelta)
	fix(&s.ScrollSpeed)
	fixInt(&s.ActiveSeconds)
	fixInt(&s.ActiveSecondsDelta)
	fixInt(&s.TabSwitchCount)

	if s.Platform == "" {
		s.Platform = PlatformGeneral
		if s.URL != "" {
			s.Platform = DetectPlatform(s.URL)
		}
	} else {
		s.Platform = ParsePlatform(string(s.Platform))
	}
	return fixed
}

// DailyBehavior is today's aggregate across all contexts
type DailyBehavior struct {
	Date              string              `json:"date"`
	ScrollDistance    float64             `json:"scrollDistance"`
	ActiveSeconds     int                 `json:"activeSeconds"`
	TabSwitches       int                 `json:"tabSwitches"`
	SessionsCompleted int                 `json:"sessionsCompleted"`
	Platforms         map[PlatformTag]int `json:"platforms"`       // active seconds per platform
	Hosts             map[string]int      `json:"hosts,omitempty"` // active seconds per tracked site
}

// NewDailyBehavior returns an empty aggregate for day
func NewDailyBehavior(day string) DailyBehavior {
	return DailyBehavior{Date: day, Platforms: make(map[PlatformTag]int), Hosts: make(map[string]int)}
}

// Visited reports whether any active time was spent on one of the tags
func (b DailyBehavior) Visited(tags ...PlatformTag) bool {
	for _, tag := range tags {
		if b.Platforms[tag] > 0 {
			return true
		}
	}
	return false
}

// VisitedHost reports whether any active time was spent on one of the sites
func (b DailyBehavior) VisitedHost(hosts ...string) bool {
	for _, h := range hosts {
		if b.Hosts[h] > 0 {
			return true
		}
	}
	return false
}

// Reflection is one free-text answer recorded when an intervention completes
type Reflection struct {
	Date string `json:"date"`
	Text string `json:"text"`
}
