// Package messages defines the typed messages exchanged between browsing
// contexts and the daemon, their JSON envelope, and the dispatch table.
package messages

import (
	"github.com/vthunder/diner/internal/burn"
	"github.com/vthunder/diner/internal/tracking"
	"github.com/vthunder/diner/internal/types"
)

// Kind discriminates message payloads on the wire
type Kind string

// Inbound kinds (context to daemon)
const (
	KindUpdateBehaviorData Kind = "UPDATE_BEHAVIOR_DATA"
	KindScroll             Kind = "SCROLL"
	KindFocus              Kind = "FOCUS"
	KindTabActivated       Kind = "TAB_ACTIVATED"
	KindAckIntervention    Kind = "ACK_INTERVENTION"
	KindTaskDone           Kind = "TASK_DONE"
	KindCompleteTask       Kind = "COMPLETE_TASK"
	KindGetSessionData     Kind = "GET_SESSION_DATA"
)

// Outbound kinds (daemon to context)
const (
	KindTriggerIntervention Kind = "TRIGGER_INTERVENTION"
	KindDismissIntervention Kind = "DISMISS_INTERVENTION"
	KindSessionData         Kind = "SESSION_DATA"
	KindTaskAccepted        Kind = "TASK_ACCEPTED"
	KindError               Kind = "ERROR"
)

// Inbound lists every kind a context may send; each needs a handler
var Inbound = []Kind{
	KindUpdateBehaviorData,
	KindScroll,
	KindFocus,
	KindTabActivated,
	KindAckIntervention,
	KindTaskDone,
	KindCompleteTask,
	KindGetSessionData,
}

// Message is implemented by every payload type
type Message interface {
	Kind() Kind
}

// UpdateBehaviorData carries a precomputed sample. Missing deltas are derived
// from the cumulative fields.
type UpdateBehaviorData struct {
	types.BehaviorSample
}

// Scroll is a raw scroll position event
type Scroll struct {
	Position float64 `json:"position"`
}

// Focus is a raw focus change event
type Focus struct {
	HasFocus bool `json:"hasFocus"`
}

// TabActivated reports that the sending context became the active tab
type TabActivated struct {
	URL string `json:"url,omitempty"`
}

// AckIntervention confirms the blocking task is on screen
type AckIntervention struct {
	AlertID string `json:"alertId"`
}

// TaskDone reports that the interactive task finished
type TaskDone struct {
	AlertID string `json:"alertId"`
	TaskID  string `json:"taskId,omitempty"`
}

// CompleteTask asks to dismiss the intervention
type CompleteTask struct {
	AlertID        string `json:"alertId"`
	TaskKind       string `json:"taskKind"`
	ReflectionText string `json:"reflectionText"`
}

// GetSessionData requests the sender's session snapshot
type GetSessionData struct{}

// TriggerIntervention tells a context to show a blocking task
type TriggerIntervention struct {
	AlertID        string      `json:"alertId"`
	Reason         burn.Reason `json:"reason"`
	Message        string      `json:"message"`
	Cause          burn.Cause  `json:"cause"`
	Score          float64     `json:"score"`
	TaskID         string      `json:"taskId"`
	TimeoutSeconds int         `json:"timeoutSeconds"`
}

// Dismiss reasons
const (
	DismissTimeout   = "timeout"
	DismissCompleted = "completed"
)

// DismissIntervention tells a context to remove the blocking task
type DismissIntervention struct {
	AlertID string `json:"alertId"`
	Reason  string `json:"reason"`
}

// SessionData is the reply to GetSessionData
type SessionData struct {
	ContextID   types.ContextID      `json:"contextId"`
	Sample      types.BehaviorSample `json:"sample"`
	Timer       tracking.TimerState  `json:"timer"`
	AlertActive bool                 `json:"alertActive"`
}

// TaskAccepted is the reply to an accepted CompleteTask
type TaskAccepted struct {
	AlertID            string `json:"alertId"`
	SessionsCompleted  int    `json:"sessionsCompleted"`
	KitchenLevel       int    `json:"kitchenLevel"`
	BreakActivity      string `json:"breakActivity,omitempty"`
	ChallengeCompleted bool   `json:"challengeCompleted,omitempty"`
}

// Error codes
const (
	CodeBadRequest      = "bad_request"
	CodeUnknownKind     = "unknown_kind"
	CodeTaskIncomplete  = "task_incomplete"
	CodeReflectionShort = "reflection_too_short"
	CodeNoActiveAlert   = "no_active_alert"
	CodeInternal        = "internal"
)

// Error reports a rejected request
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (UpdateBehaviorData) Kind() Kind  { return KindUpdateBehaviorData }
func (Scroll) Kind() Kind              { return KindScroll }
func (Focus) Kind() Kind               { return KindFocus }
func (TabActivated) Kind() Kind        { return KindTabActivated }
func (AckIntervention) Kind() Kind     { return KindAckIntervention }
func (TaskDone) Kind() Kind            { return KindTaskDone }
func (CompleteTask) Kind() Kind        { return KindCompleteTask }
func (GetSessionData) Kind() Kind      { return KindGetSessionData }
func (TriggerIntervention) Kind() Kind { return KindTriggerIntervention }
func (DismissIntervention) Kind() Kind { return KindDismissIntervention }
func (SessionData) Kind() Kind         { return KindSessionData }
func (TaskAccepted) Kind() Kind        { return KindTaskAccepted }
func (Error) Kind() Kind               { return KindError }

// decoders builds an empty payload for each kind
var decoders = map[Kind]func() Message{
	KindUpdateBehaviorData:  func() Message { return &UpdateBehaviorData{} },
	KindScroll:              func() Message { return &Scroll{} },
	KindFocus:               func() Message { return &Focus{} },
	KindTabActivated:        func() Message { return &TabActivated{} },
	KindAckIntervention:     func() Message { return &AckIntervention{} },
	KindTaskDone:            func() Message { return &TaskDone{} },
	KindCompleteTask:        func() Message { return &CompleteTask{} },
	KindGetSessionData:      func() Message { return &GetSessionData{} },
	KindTriggerIntervention: func() Message { return &TriggerIntervention{} },
	KindDismissIntervention: func() Message { return &DismissIntervention{} },
	KindSessionData:         func() Message { return &SessionData{} },
	KindTaskAccepted:        func() Message { return &TaskAccepted{} },
	KindError:               func() Message { return &Error{} },
}
