// Package tools registers the MCP tools that expose diner state to agents.
package tools

import (
	"github.com/vthunder/diner/internal/activity"
	"github.com/vthunder/diner/internal/clock"
	"github.com/vthunder/diner/internal/notify"
	"github.com/vthunder/diner/internal/store"
	"github.com/vthunder/diner/internal/summary"
)

// Dependencies holds all services that MCP tools may need.
// Optional fields may be nil.
type Dependencies struct {
	// Core services (required)
	Aggregate   *store.Aggregate
	ActivityLog *activity.Log
	Clock       clock.Clock

	// Optional services
	Outbox  *notify.Outbox
	Summary *summary.Service

	// If set, called after every tool invocation
	OnToolCall func(toolName string)
}
